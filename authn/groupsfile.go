// Package authn provides the concrete authentication and group-membership backends.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package authn

import (
	"context"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

// tomlGroupsFile is the on-disk shape of authz.groups_file: a group ->
// member-list map. It is the group source for the proxy_header backend,
// which vouches only for the username.
type tomlGroupsFile struct {
	Groups map[string][]string `toml:"groups"`
}

// TOMLGroups is the `authz.kind = toml_file` group-membership source.
type TOMLGroups struct {
	mu     sync.RWMutex
	byUser map[string]map[db.Group]struct{}
}

func NewTOMLGroups(path string) (*TOMLGroups, error) {
	g := &TOMLGroups{}
	if err := g.Reload(path); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *TOMLGroups) Reload(path string) error {
	var parsed tomlGroupsFile
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		return cmn.WrapBackend(err, "decode groups file %q", path)
	}
	byUser := make(map[string]map[db.Group]struct{})
	for group, members := range parsed.Groups {
		for _, user := range members {
			if byUser[user] == nil {
				byUser[user] = make(map[db.Group]struct{})
			}
			byUser[user][db.Group(group)] = struct{}{}
		}
	}
	g.mu.Lock()
	g.byUser = byUser
	g.mu.Unlock()
	return nil
}

func (g *TOMLGroups) GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	groups, ok := g.byUser[user]
	if !ok {
		return nil, cmn.NewNotFound("user %q has no groups", user)
	}
	out := make(map[db.Group]struct{}, len(groups))
	for grp := range groups {
		out[grp] = struct{}{}
	}
	return out, nil
}
