// Package auth provides the two-level authorization cache: group
// membership and per-media access groups, with explicit invalidation
// whenever collection membership changes.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package auth

import (
	"context"

	"github.com/pixelvault/pixelvault/db"
)

// Backend is the pluggable authentication/authorization backend: a
// static credentials file, or a reverse-proxy header trusted after a
// TLS client-cert common-name check. Concrete implementations live in
// package authn.
type Backend interface {
	Authenticate(ctx context.Context, user, password string) (bool, error)
	IsValidUser(ctx context.Context, user string) (bool, error)
	GroupsForUser(ctx context.Context, user string) (map[db.Group]struct{}, error)
}
