// Package auth provides the two-level authorization cache.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package auth

import (
	"context"
	"regexp"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/coalesce"
	"github.com/pixelvault/pixelvault/db"
)

// MediaAccessSource is the narrow slice of db.Backend the cache needs
// to populate its media-access map and to perform the uncached,
// exact owns_media check.
type MediaAccessSource interface {
	MediaAccessGroups(ctx context.Context, id cmn.MediaUuid) (map[db.Group]struct{}, error)
	MediaOwnerGroup(ctx context.Context, id cmn.MediaUuid) (db.Group, error)
}

// Cache holds a user-groups cache (user -> set<group>) and a
// media-access cache (media -> set<group>), each backed by
// coalesce.Map so concurrent misses for the same key resolve exactly
// once.
type Cache struct {
	backend     Backend
	database    MediaAccessSource
	userGroups  *coalesce.Map[string, map[db.Group]struct{}]
	mediaAccess *coalesce.Map[cmn.MediaUuid, map[db.Group]struct{}]
	groupRegex  *regexp.Regexp
	log         interface {
		Warnf(format string, args ...interface{})
	}
}

func NewCache(backend Backend, database MediaAccessSource, groupRegex *regexp.Regexp) *Cache {
	return &Cache{
		backend:     backend,
		database:    database,
		userGroups:  coalesce.NewMap[string, map[db.Group]struct{}](),
		mediaAccess: coalesce.NewMap[cmn.MediaUuid, map[db.Group]struct{}](),
		groupRegex:  groupRegex,
		log:         cmn.Component("auth"),
	}
}

func (c *Cache) groupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	return c.userGroups.Get(user, func() (map[db.Group]struct{}, error) {
		raw, err := c.backend.GroupsForUser(ctx, user)
		if err != nil {
			return nil, cmn.WrapBackend(err, "groups for user %q", user)
		}
		if c.groupRegex == nil {
			return raw, nil
		}
		filtered := make(map[db.Group]struct{}, len(raw))
		for g := range raw {
			if c.groupRegex.MatchString(string(g)) {
				filtered[g] = struct{}{}
			}
		}
		return filtered, nil
	})
}

// GroupsForUser exposes the cached group set; the dispatch layer uses
// it to scope searches to the caller's groups.
func (c *Cache) GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	return c.groupsForUser(ctx, user)
}

func (c *Cache) accessGroupsForMedia(ctx context.Context, media cmn.MediaUuid) (map[db.Group]struct{}, error) {
	return c.mediaAccess.Get(media, func() (map[db.Group]struct{}, error) {
		return c.database.MediaAccessGroups(ctx, media)
	})
}

// CanAccessMedia resolves both caches and tests non-empty intersection
// of the user's groups with the media's access groups.
func (c *Cache) CanAccessMedia(ctx context.Context, user string, media cmn.MediaUuid) (bool, error) {
	userGroups, err := c.groupsForUser(ctx, user)
	if err != nil {
		return false, err
	}
	mediaGroups, err := c.accessGroupsForMedia(ctx, media)
	if err != nil {
		return false, err
	}
	for g := range userGroups {
		if _, ok := mediaGroups[g]; ok {
			return true, nil
		}
	}
	return false, nil
}

// OwnsMedia performs one uncached database read (the media joined to its
// library's group) and tests membership against the user's cached group set.
// Ownership checks are rarer than access checks and stay exact.
func (c *Cache) OwnsMedia(ctx context.Context, user string, media cmn.MediaUuid) (bool, error) {
	owner, err := c.database.MediaOwnerGroup(ctx, media)
	if err != nil {
		return false, err
	}
	userGroups, err := c.groupsForUser(ctx, user)
	if err != nil {
		return false, err
	}
	_, ok := userGroups[owner]
	return ok, nil
}

// InGroup reports whether user belongs to group, using the cached
// group set - used by the AddCollection policy ("caller must be in the
// new collection's group").
func (c *Cache) InGroup(ctx context.Context, user string, group db.Group) (bool, error) {
	userGroups, err := c.groupsForUser(ctx, user)
	if err != nil {
		return false, err
	}
	_, ok := userGroups[group]
	return ok, nil
}

// ClearUserCache removes the listed user ids from the group-membership
// cache; an empty slice clears everything.
func (c *Cache) ClearUserCache(ids []string) {
	c.userGroups.Clear(ids)
}

// ClearAccessCache removes the listed media ids from the access cache;
// an empty slice clears everything. Implements db.AccessCacheInvalidator
// so db.Service can call it directly after a mutating collection
// operation - the cache's only consistency mechanism.
func (c *Cache) ClearAccessCache(ids []cmn.MediaUuid) {
	c.mediaAccess.Clear(ids)
}
