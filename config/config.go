// Package config loads and validates the server configuration.
// The on-disk format is TOML (the same format the authn users file and
// authz groups file use); environment variables prefixed PIXELVAULT_
// override file values.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package config

import (
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pixelvault/pixelvault/cmn"
)

// Scan bounds one scan run.
type Scan struct {
	Threads     int
	TimeoutSecs int
	ScratchRoot string
}

func (s Scan) Timeout() time.Duration { return time.Duration(s.TimeoutSecs) * time.Second }

// HTTP is the front-end listener configuration.
type HTTP struct {
	Socket  string // must parse as an IPv6 socket address
	URLRoot string
}

// Authn selects and parameterizes the authentication backend.
type Authn struct {
	Kind            string // "proxy_header" or "toml_file"
	ProxyHeaderName string
	ProxyCommonName string
	UsersFile       string
}

// Authz selects the group-membership source.
type Authz struct {
	Kind       string // "toml_file"
	GroupsFile string
}

// Config is the complete, validated server configuration.
type Config struct {
	Scan         Scan
	HTTP         HTTP
	Authn        Authn
	Authz        Authz
	MediaSrcDir  string
	MediaLinkDir string
	ThumbnailDir string
	DatabaseDSN  string

	UserRegex  *regexp.Regexp
	GroupRegex *regexp.Regexp
}

// Load reads path, applies environment overrides, and validates every
// recognized option. Unknown keys are ignored.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("pixelvault")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("scan.threads", 4)
	v.SetDefault("scan.timeout_secs", 300)
	v.SetDefault("scan.scratch_root", "/var/tmp/pixelvault")
	v.SetDefault("http.url_root", "/")
	v.SetDefault("user_regex", `^[a-z][a-z0-9_-]*$`)
	v.SetDefault("group_regex", `^[a-z][a-z0-9_-]*$`)

	if err := v.ReadInConfig(); err != nil {
		return nil, cmn.WrapBackend(err, "read config %q", path)
	}

	cfg := &Config{
		Scan: Scan{
			Threads:     v.GetInt("scan.threads"),
			TimeoutSecs: v.GetInt("scan.timeout_secs"),
			ScratchRoot: v.GetString("scan.scratch_root"),
		},
		HTTP: HTTP{
			Socket:  v.GetString("http.socket"),
			URLRoot: v.GetString("http.url_root"),
		},
		Authn: Authn{
			Kind:            v.GetString("authn.kind"),
			ProxyHeaderName: v.GetString("authn.proxy_header_name"),
			ProxyCommonName: v.GetString("authn.proxy_common_name"),
			UsersFile:       v.GetString("authn.users_file"),
		},
		Authz: Authz{
			Kind:       v.GetString("authz.kind"),
			GroupsFile: v.GetString("authz.groups_file"),
		},
		MediaSrcDir:  v.GetString("media_srcdir"),
		MediaLinkDir: v.GetString("media_linkdir"),
		ThumbnailDir: v.GetString("thumbnail_dir"),
		DatabaseDSN:  v.GetString("database.dsn"),
	}

	return cfg, cfg.validate(v.GetString("user_regex"), v.GetString("group_regex"))
}

func (c *Config) validate(userRe, groupRe string) error {
	if c.Scan.Threads < 1 {
		return cmn.NewMalformed("scan.threads must be at least 1")
	}
	if c.Scan.TimeoutSecs < 1 {
		return cmn.NewMalformed("scan.timeout_secs must be at least 1")
	}

	addr, err := netip.ParseAddrPort(c.HTTP.Socket)
	if err != nil {
		return cmn.NewMalformed("http.socket %q is not a socket address: %v", c.HTTP.Socket, err)
	}
	if !addr.Addr().Is6() {
		return cmn.NewMalformed("http.socket %q must be an IPv6 socket address", c.HTTP.Socket)
	}

	switch c.Authn.Kind {
	case "toml_file":
		if c.Authn.UsersFile == "" {
			return cmn.NewMalformed("authn.users_file is required for authn.kind = toml_file")
		}
	case "proxy_header":
		if c.Authn.ProxyHeaderName == "" {
			return cmn.NewMalformed("authn.proxy_header_name is required for authn.kind = proxy_header")
		}
	default:
		return cmn.NewMalformed("authn.kind %q is not one of proxy_header, toml_file", c.Authn.Kind)
	}

	if c.Authz.Kind != "" && c.Authz.Kind != "toml_file" {
		return cmn.NewMalformed("authz.kind %q is not toml_file", c.Authz.Kind)
	}

	if c.UserRegex, err = regexp.Compile(userRe); err != nil {
		return cmn.NewMalformed("user_regex: %v", err)
	}
	if c.GroupRegex, err = regexp.Compile(groupRe); err != nil {
		return cmn.NewMalformed("group_regex: %v", err)
	}
	return nil
}
