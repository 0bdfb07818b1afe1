// Package authn provides the concrete authentication and group-membership backends:
// a static file of salted password hashes, and a reverse-proxy header
// trusted after a TLS client-cert common-name check.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package authn

import (
	"context"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

// tomlUsersFile is the on-disk shape of authn.users_file: a user ->
// bcrypt-hash map plus each user's group membership.
type tomlUsersFile struct {
	Users map[string]tomlUser `toml:"users"`
}

type tomlUser struct {
	Hash   string   `toml:"hash"`
	Groups []string `toml:"groups"`
}

// TOMLFile is the `authn.kind = toml_file` backend.
type TOMLFile struct {
	mu    sync.RWMutex
	users map[string]tomlUser
}

func NewTOMLFile(path string) (*TOMLFile, error) {
	f := &TOMLFile{}
	if err := f.Reload(path); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the users file. Exposed so an operator can rotate
// credentials without restarting the server.
func (f *TOMLFile) Reload(path string) error {
	var parsed tomlUsersFile
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		return cmn.WrapBackend(err, "decode users file %q", path)
	}
	f.mu.Lock()
	f.users = parsed.Users
	f.mu.Unlock()
	return nil
}

func (f *TOMLFile) Authenticate(ctx context.Context, user, password string) (bool, error) {
	f.mu.RLock()
	u, ok := f.users[user]
	f.mu.RUnlock()
	if !ok {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password))
	return err == nil, nil
}

func (f *TOMLFile) IsValidUser(ctx context.Context, user string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.users[user]
	return ok, nil
}

func (f *TOMLFile) GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.users[user]
	if !ok {
		return nil, cmn.NewNotFound("user %q", user)
	}
	groups := make(map[db.Group]struct{}, len(u.Groups))
	for _, g := range u.Groups {
		groups[db.Group(g)] = struct{}{}
	}
	return groups, nil
}
