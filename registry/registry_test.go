// Package registry provides the process-wide service registry and request/response envelopes.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/registry"
)

func TestRegisterLookupFreeze(t *testing.T) {
	r := registry.New()
	inbox := registry.NewInbox[int, int]()
	registry.Register(r, registry.Database, inbox)

	got, ok := registry.Lookup[registry.Inbox[int, int]](r, registry.Database)
	require.True(t, ok)
	assert.NotNil(t, got)

	r.Freeze()
	assert.Panics(t, func() {
		registry.Register(r, registry.Auth, registry.NewInbox[int, int]())
	})
}

func TestSendServeConcurrent(t *testing.T) {
	inbox := registry.NewInbox[int, int]()
	go registry.Serve(inbox, func(ctx context.Context, req int) (int, error) {
		return req * 2, nil
	})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			resp, err := registry.Send(context.Background(), inbox, i)
			require.NoError(t, err)
			assert.Equal(t, i*2, resp)
		}()
	}
	wg.Wait()
}

func TestSendToClosedInboxReturnsChannelError(t *testing.T) {
	inbox := registry.NewInbox[int, int]()
	close(inbox)

	_, err := registry.Send(context.Background(), inbox, 1)
	require.Error(t, err)
	assert.True(t, cmn.Is(err, cmn.KindChannel))
}
