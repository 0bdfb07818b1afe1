// Package httpapi maps external HTTP calls to service requests and enforces per-endpoint policy.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package httpapi_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/auth"
	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/config"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/httpapi"
	"github.com/pixelvault/pixelvault/registry"
	"github.com/pixelvault/pixelvault/tasks"
)

// fakeAuthn accepts any listed user with password "pw" and returns its
// static group set.
type fakeAuthn struct {
	groups map[string]map[db.Group]struct{}
}

func (f *fakeAuthn) Authenticate(ctx context.Context, user, password string) (bool, error) {
	_, ok := f.groups[user]
	return ok && password == "pw", nil
}

func (f *fakeAuthn) IsValidUser(ctx context.Context, user string) (bool, error) {
	_, ok := f.groups[user]
	return ok, nil
}

func (f *fakeAuthn) GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	g, ok := f.groups[user]
	if !ok {
		return nil, cmn.NewNotFound("user %q", user)
	}
	return g, nil
}

// fakeBackend covers the handful of reads the dispatch policies need.
type fakeBackend struct {
	db.Backend
	media        map[cmn.MediaUuid]*db.Media
	libraries    map[cmn.LibraryUuid]*db.Library
	accessGroups map[cmn.MediaUuid]map[db.Group]struct{}
}

func (f *fakeBackend) GetMedia(ctx context.Context, id cmn.MediaUuid) (*db.Media, []cmn.CollectionUuid, []db.Comment, error) {
	m, ok := f.media[id]
	if !ok {
		return nil, nil, nil, cmn.NewNotFound("media %d", id)
	}
	cp := *m
	return &cp, nil, nil, nil
}

func (f *fakeBackend) MediaAccessGroups(ctx context.Context, id cmn.MediaUuid) (map[db.Group]struct{}, error) {
	return f.accessGroups[id], nil
}

func (f *fakeBackend) MediaOwnerGroup(ctx context.Context, id cmn.MediaUuid) (db.Group, error) {
	m, ok := f.media[id]
	if !ok {
		return "", cmn.NewNotFound("media %d", id)
	}
	return f.libraries[m.Library].OwnerGroup, nil
}

func (f *fakeBackend) GetLibrary(ctx context.Context, id cmn.LibraryUuid) (*db.Library, error) {
	l, ok := f.libraries[id]
	if !ok {
		return nil, cmn.NewNotFound("library %d", id)
	}
	cp := *l
	return &cp, nil
}

func newTestServer(t *testing.T) (*httpapi.Server, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{
		media:        map[cmn.MediaUuid]*db.Media{},
		libraries:    map[cmn.LibraryUuid]*db.Library{},
		accessGroups: map[cmn.MediaUuid]map[db.Group]struct{}{},
	}
	backend.libraries[1] = &db.Library{ID: 1, Path: "/lib", OwnerGroup: "family"}
	backend.media[10] = &db.Media{ID: 10, Library: 1, Path: "/lib/a.jpg", Tags: map[string]struct{}{}}
	backend.accessGroups[10] = map[db.Group]struct{}{"family": {}}

	authBackend := &fakeAuthn{groups: map[string]map[db.Group]struct{}{
		"alice":   {"family": {}},
		"mallory": {"other": {}},
	}}

	cache := auth.NewCache(authBackend, backend, nil)
	dbsvc := db.NewService(backend, cache)

	tasksIn := registry.NewInbox[tasks.Request, tasks.Response]()
	go registry.Serve(tasksIn, tasks.NewSupervisor().Handle)

	cfg := &config.Config{HTTP: config.HTTP{URLRoot: "/"}}
	return httpapi.NewServer(cfg, cache, dbsvc, tasksIn, authBackend, nil, nil, nil), backend
}

func post(t *testing.T, s *httpapi.Server, user, op, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/"+op, bytes.NewBufferString(body))
	if user != "" {
		req.SetBasicAuth(user, "pw")
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestGetMediaEnforcesAccess(t *testing.T) {
	s, _ := newTestServer(t)

	w := post(t, s, "alice", "GetMedia", `{"media":"10"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"/lib/a.jpg"`)

	w = post(t, s, "mallory", "GetMedia", `{"media":"10"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMissingCredentialsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	w := post(t, s, "", "GetMedia", `{"media":"10"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownOperationIsMalformed(t *testing.T) {
	s, _ := newTestServer(t)
	w := post(t, s, "alice", "NoSuchOp", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMalformedHandleRejected(t *testing.T) {
	s, _ := newTestServer(t)
	w := post(t, s, "alice", "GetMedia", `{"media":"not-a-number"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShowSystemTasksAlwaysAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	w := post(t, s, "mallory", "ShowTasks", `{"system":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"tasks"`)
}

func TestShowLibraryTasksRequiresOwnership(t *testing.T) {
	s, _ := newTestServer(t)
	w := post(t, s, "mallory", "ShowTasks", `{"library":"1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, s, "alice", "ShowTasks", `{"library":"1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
