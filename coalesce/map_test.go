// Package coalesce provides an await-coalescing concurrent map of lazily-resolved values.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package coalesce_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/coalesce"
)

func TestGetCoalescesConcurrentMisses(t *testing.T) {
	m := coalesce.NewMap[string, int]()
	var calls int32

	var wg sync.WaitGroup
	results := make([]int, 20)
	wg.Add(20)
	for i := 0; i < 20; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, err := m.Get("k", func() (int, error) {
				atomic.AddInt32(&calls, 1)
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls, "resolve must run exactly once per key under concurrent miss")
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestGetDoesNotMemoizeErrors(t *testing.T) {
	m := coalesce.NewMap[string, int]()
	var calls int32

	_, err := m.Get("k", func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("boom")
	})
	require.Error(t, err)

	v, err := m.Get("k", func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls)
}

func TestClearSpecificAndAll(t *testing.T) {
	m := coalesce.NewMap[string, int]()
	_, _ = m.Get("a", func() (int, error) { return 1, nil })
	_, _ = m.Get("b", func() (int, error) { return 2, nil })

	var calls int32
	m.Clear([]string{"a"})
	v, _ := m.Get("a", func() (int, error) { atomic.AddInt32(&calls, 1); return 99, nil })
	assert.Equal(t, 99, v)
	assert.Equal(t, int32(1), calls)

	v, _ = m.Get("b", func() (int, error) { atomic.AddInt32(&calls, 1); return 2, nil })
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(1), calls, "b was never cleared, so it should still be memoized")

	m.Clear(nil)
	v, _ = m.Get("b", func() (int, error) { atomic.AddInt32(&calls, 1); return 2, nil })
	assert.Equal(t, int32(2), calls, "Clear(nil) clears everything")
	_ = v
}
