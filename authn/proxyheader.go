// Package authn provides the concrete authentication and group-membership backends.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package authn

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

// ProxyHeader is the `authn.kind = proxy_header` backend: it trusts a
// configured request header for identity, but only once the caller has
// checked the peer TLS certificate's Subject Common Name against
// proxy_common_name. The CN check itself lives in CheckPeerCN, called
// per request from httpapi's requestUser rather than here, since
// *http.Request is not threaded through the auth.Backend interface.
type ProxyHeader struct {
	headerName string
	commonName string
	groups     GroupSource
}

// GroupSource resolves a proxy-authenticated user's groups; typically
// backed by a static authz.groups_file rather than the identity
// provider itself, since the proxy only vouches for the username.
type GroupSource interface {
	GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error)
}

func NewProxyHeader(headerName, commonName string, groups GroupSource) *ProxyHeader {
	return &ProxyHeader{headerName: headerName, commonName: commonName, groups: groups}
}

// CheckPeerCN reports whether req's TLS peer certificate chain contains
// the configured common name. Call this before trusting the identity
// header at all; the header alone proves nothing.
func (p *ProxyHeader) CheckPeerCN(req *http.Request) error {
	if p.commonName == "" {
		return nil
	}
	if req.TLS == nil {
		return cmn.NewUnauthorized("request has no TLS peer certificate")
	}
	for _, cert := range req.TLS.PeerCertificates {
		if cert.Subject.CommonName == p.commonName {
			return nil
		}
	}
	return cmn.NewUnauthorized("no peer certificate with common name %q", p.commonName)
}

// UserFromRequest extracts the trusted identity header. Returns an
// unauthorized error if the header is absent.
func (p *ProxyHeader) UserFromRequest(req *http.Request) (string, error) {
	user := req.Header.Get(p.headerName)
	if user == "" {
		return "", cmn.NewUnauthorized("missing %q header", p.headerName)
	}
	return user, nil
}

// Authenticate is not meaningful for this backend - identity is
// established by the reverse proxy and the peer-certificate check, not
// by a password. It always reports failure so it can never be reached
// through the password-login operation by mistake.
func (p *ProxyHeader) Authenticate(ctx context.Context, user, password string) (bool, error) {
	return false, fmt.Errorf("proxy_header backend does not support password authentication")
}

func (p *ProxyHeader) IsValidUser(ctx context.Context, user string) (bool, error) {
	groups, err := p.groups.GroupsForUser(ctx, user)
	if err != nil {
		return false, err
	}
	return len(groups) > 0, nil
}

func (p *ProxyHeader) GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	return p.groups.GroupsForUser(ctx, user)
}
