// Package auth provides the two-level authorization cache.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package auth_test

import (
	"context"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/auth"
	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

type fakeAuthBackend struct {
	groups map[string]map[db.Group]struct{}
	calls  int32
}

func (f *fakeAuthBackend) Authenticate(ctx context.Context, user, password string) (bool, error) {
	return true, nil
}
func (f *fakeAuthBackend) IsValidUser(ctx context.Context, user string) (bool, error) {
	_, ok := f.groups[user]
	return ok, nil
}
func (f *fakeAuthBackend) GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.groups[user], nil
}

type fakeMediaSource struct {
	access map[cmn.MediaUuid]map[db.Group]struct{}
	owner  map[cmn.MediaUuid]db.Group
}

func (f *fakeMediaSource) MediaAccessGroups(ctx context.Context, id cmn.MediaUuid) (map[db.Group]struct{}, error) {
	return f.access[id], nil
}
func (f *fakeMediaSource) MediaOwnerGroup(ctx context.Context, id cmn.MediaUuid) (db.Group, error) {
	return f.owner[id], nil
}

// A user outside a media's library group gains access only after the
// media is added to a collection in a group the user belongs to, and
// only once the access cache is invalidated.
func TestCollectionMembershipInvalidation(t *testing.T) {
	backend := &fakeAuthBackend{groups: map[string]map[db.Group]struct{}{
		"alice": {"family": {}},
	}}
	source := &fakeMediaSource{
		access: map[cmn.MediaUuid]map[db.Group]struct{}{
			42: {"strangers": {}},
		},
		owner: map[cmn.MediaUuid]db.Group{42: "strangers"},
	}
	cache := auth.NewCache(backend, source, nil)

	ok, err := cache.CanAccessMedia(context.Background(), "alice", 42)
	require.NoError(t, err)
	assert.False(t, ok)

	// Collection C (group "family") now contains media 42.
	source.access[42] = map[db.Group]struct{}{"strangers": {}, "family": {}}
	cache.ClearAccessCache([]cmn.MediaUuid{42})

	ok, err = cache.CanAccessMedia(context.Background(), "alice", 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGroupRegexFiltersSyntacticallyInvalidGroups(t *testing.T) {
	backend := &fakeAuthBackend{groups: map[string]map[db.Group]struct{}{
		"bob": {"valid-group": {}, "bad group!!": {}},
	}}
	cache := auth.NewCache(backend, &fakeMediaSource{}, regexp.MustCompile(`^[a-z0-9-]+$`))

	ok, err := cache.InGroup(context.Background(), "bob", "valid-group")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.InGroup(context.Background(), "bob", "bad group!!")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupsForUserCoalescesBackendCalls(t *testing.T) {
	backend := &fakeAuthBackend{groups: map[string]map[db.Group]struct{}{"carol": {"g": {}}}}
	cache := auth.NewCache(backend, &fakeMediaSource{}, nil)

	for i := 0; i < 10; i++ {
		_, err := cache.InGroup(context.Background(), "carol", "g")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.calls, "repeated lookups for the same user must hit the backend once")
}
