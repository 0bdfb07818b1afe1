// Package registry provides the process-wide service registry and request/response envelopes.
// Every subsystem is an actor addressed by a typed inbox, and every
// cross-service call carries a one-shot reply channel.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package registry

import (
	"fmt"
	"sync"
)

// Name identifies one of the small closed set of services.
type Name string

const (
	Database   Name = "database"
	Auth       Name = "auth"
	Tasks      Name = "tasks"
	ScanEngine Name = "scan"
)

// Registry maps a service Name to its inbox. Insertion is startup-only:
// once Freeze is called the set of services is immutable.
type Registry struct {
	mu      sync.RWMutex
	inboxes map[Name]interface{}
	frozen  bool
}

func New() *Registry {
	return &Registry{inboxes: make(map[Name]interface{}, 8)}
}

// Register installs the inbox for a service. Panics if called after
// Freeze - this is a startup-sequencing bug, not a runtime condition.
func Register(r *Registry, name Name, inbox interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("registry: cannot register %q after Freeze", name))
	}
	r.inboxes[name] = inbox
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the inbox registered for name, type-asserted to T.
// It is the caller's responsibility to pass the matching type; a
// mismatch is a wiring bug and panics rather than silently misrouting.
func Lookup[T any](r *Registry, name Name) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.inboxes[name]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := raw.(T)
	if !ok {
		panic(fmt.Sprintf("registry: inbox %q has unexpected type", name))
	}
	return typed, true
}
