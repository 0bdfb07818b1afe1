// Package coalesce provides an await-coalescing concurrent map of lazily-resolved values.
// The miss path inserts a pending entry and awaits it; a second lookup
// finds the pending entry and awaits the same value. Built directly as
// a generic map-of-futures rather than wrapping
// golang.org/x/sync/singleflight, whose Forget has no "clear these
// specific keys, or all of them" eviction primitive, which the auth
// cache's invalidation contract requires.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package coalesce

import "sync"

type future[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Map is a concurrent map from key K to a lazily-resolved value V.
// The value is computed exactly once per miss even under parallel
// lookups; all waiters observe the same value or the same error.
// Errors are never memoized: a failed resolution clears its own entry
// before returning, so the next lookup retries.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	pending map[K]*future[V]
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{pending: make(map[K]*future[V])}
}

// Get resolves key, calling resolve at most once concurrently per key.
func (m *Map[K, V]) Get(key K, resolve func() (V, error)) (V, error) {
	m.mu.Lock()
	if f, ok := m.pending[key]; ok {
		m.mu.Unlock()
		<-f.done
		return f.value, f.err
	}

	f := &future[V]{done: make(chan struct{})}
	m.pending[key] = f
	m.mu.Unlock()

	f.value, f.err = resolve()
	close(f.done)

	if f.err != nil {
		m.mu.Lock()
		if m.pending[key] == f {
			delete(m.pending, key)
		}
		m.mu.Unlock()
	}

	return f.value, f.err
}

// Clear removes the listed keys. An empty keys slice clears everything.
func (m *Map[K, V]) Clear(keys []K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(keys) == 0 {
		m.pending = make(map[K]*future[V])
		return
	}
	for _, k := range keys {
		delete(m.pending, k)
	}
}
