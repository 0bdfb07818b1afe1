// Package authn provides the concrete authentication and group-membership backends.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package authn_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixelvault/pixelvault/authn"
	"github.com/pixelvault/pixelvault/db"
)

func writeUsersFile(t *testing.T, hash string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "users.toml")
	contents := "[users.alice]\nhash = \"" + hash + "\"\ngroups = [\"family\", \"friends\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestTOMLFileAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.DefaultCost)
	require.NoError(t, err)
	path := writeUsersFile(t, string(hash))

	backend, err := authn.NewTOMLFile(path)
	require.NoError(t, err)

	ok, err := backend.Authenticate(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = backend.Authenticate(context.Background(), "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = backend.Authenticate(context.Background(), "nobody", "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	groups, err := backend.GroupsForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Contains(t, groups, db.Group("family"))
	assert.Contains(t, groups, db.Group("friends"))
}

func TestTOMLFileReload(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("first"), bcrypt.DefaultCost)
	path := writeUsersFile(t, string(hash))

	backend, err := authn.NewTOMLFile(path)
	require.NoError(t, err)

	newHash, _ := bcrypt.GenerateFromPassword([]byte("second"), bcrypt.DefaultCost)
	contents := "[users.alice]\nhash = \"" + string(newHash) + "\"\ngroups = [\"family\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	require.NoError(t, backend.Reload(path))

	ok, err := backend.Authenticate(context.Background(), "alice", "second")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProxyHeaderRejectsMissingHeader(t *testing.T) {
	ph := authn.NewProxyHeader("X-Remote-User", "", nil)
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	_, err := ph.UserFromRequest(req)
	assert.Error(t, err)
}

func TestProxyHeaderAcceptsConfiguredHeader(t *testing.T) {
	ph := authn.NewProxyHeader("X-Remote-User", "", nil)
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Remote-User", "bob")
	user, err := ph.UserFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}

func TestProxyHeaderChecksPeerCommonName(t *testing.T) {
	ph := authn.NewProxyHeader("X-Remote-User", "trusted-proxy", nil)

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: "someone-else"}},
		},
	}
	assert.Error(t, ph.CheckPeerCN(req))

	req.TLS.PeerCertificates = append(req.TLS.PeerCertificates,
		&x509.Certificate{Subject: pkix.Name{CommonName: "trusted-proxy"}})
	assert.NoError(t, ph.CheckPeerCN(req))
}

func TestProxyHeaderRejectsNoTLSWhenCommonNameRequired(t *testing.T) {
	ph := authn.NewProxyHeader("X-Remote-User", "trusted-proxy", nil)
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	assert.Error(t, ph.CheckPeerCN(req))
}
