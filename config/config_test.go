// Package config loads and validates the server configuration.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const validConfig = `
media_srcdir = "/srv/media"
media_linkdir = "/srv/links"
thumbnail_dir = "/srv/thumbs"

[database]
dsn = "pixelvault:secret@tcp(localhost:3306)/pixelvault"

[scan]
threads = 8
timeout_secs = 120
scratch_root = "/var/tmp/pv"

[http]
socket = "[::1]:8080"
url_root = "/pv"

[authn]
kind = "toml_file"
users_file = "/etc/pixelvault/users.toml"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Scan.Threads)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Timeout())
	assert.Equal(t, "/var/tmp/pv", cfg.Scan.ScratchRoot)
	assert.Equal(t, "[::1]:8080", cfg.HTTP.Socket)
	assert.Equal(t, "/pv", cfg.HTTP.URLRoot)
	assert.Equal(t, "toml_file", cfg.Authn.Kind)
	assert.Equal(t, "/srv/media", cfg.MediaSrcDir)

	require.NotNil(t, cfg.UserRegex)
	assert.True(t, cfg.UserRegex.MatchString("alice"))
	assert.False(t, cfg.UserRegex.MatchString("Not A User"))
}

func TestLoadRejectsIPv4Socket(t *testing.T) {
	bad := `
[http]
socket = "127.0.0.1:8080"

[authn]
kind = "toml_file"
users_file = "/etc/pixelvault/users.toml"
`
	_, err := config.Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IPv6")
}

func TestLoadRejectsUnknownAuthnKind(t *testing.T) {
	bad := `
[http]
socket = "[::]:8080"

[authn]
kind = "ldap"
`
	_, err := config.Load(writeConfig(t, bad))
	require.Error(t, err)
}

func TestLoadRequiresProxyHeaderName(t *testing.T) {
	bad := `
[http]
socket = "[::]:8080"

[authn]
kind = "proxy_header"
`
	_, err := config.Load(writeConfig(t, bad))
	require.Error(t, err)
}
