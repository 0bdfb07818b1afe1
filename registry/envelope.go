// Package registry provides the process-wide service registry and request/response envelopes.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package registry

import (
	"context"

	"github.com/pixelvault/pixelvault/cmn"
)

// Envelope is a request carrying a one-shot reply channel; the caller
// awaits the reply.
type Envelope[Req, Resp any] struct {
	Req   Req
	reply chan Result[Resp]
}

// Result is the typed outcome delivered on the reply channel. Failures
// are encoded here, not by dropping the reply endpoint - the sender
// only learns about a dead service by failing to enqueue the envelope
// in the first place.
type Result[Resp any] struct {
	Value Resp
	Err   error
}

// Inbox is a FIFO send endpoint for one service, buffered to the
// capacity NewInbox gives it; once that many envelopes are queued,
// enqueue blocks until the service takes one or ctx ends.
type Inbox[Req, Resp any] chan *Envelope[Req, Resp]

// NewInbox creates a service's receive endpoint. Capacity is large but
// finite in practice (Go channels cannot be truly unbounded); services
// are expected to drain faster than callers enqueue since every handler
// runs in its own spawned goroutine.
func NewInbox[Req, Resp any]() Inbox[Req, Resp] {
	return make(Inbox[Req, Resp], 4096)
}

// Send enqueues req on inbox and awaits the reply, honoring ctx
// cancellation. If the inbox has been closed (the service terminated),
// the caller learns via cmn.ErrChannelClosed rather than by crashing
// or blocking forever.
func Send[Req, Resp any](ctx context.Context, inbox Inbox[Req, Resp], req Req) (Resp, error) {
	var zero Resp
	env := &Envelope[Req, Resp]{Req: req, reply: make(chan Result[Resp], 1)}

	if err := enqueue(ctx, inbox, env); err != nil {
		return zero, err
	}

	select {
	case res := <-env.reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// enqueue delivers env to inbox, converting the send-on-closed-channel
// panic into cmn.ErrChannelClosed. Closing an inbox is how a service
// terminates; its callers must observe that as a Channel-kind error.
func enqueue[Req, Resp any](ctx context.Context, inbox Inbox[Req, Resp], env *Envelope[Req, Resp]) (err error) {
	defer func() {
		if recover() != nil {
			err = cmn.ErrChannelClosed
		}
	}()
	select {
	case inbox <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reply delivers a result on env's one-shot channel. Safe to call
// exactly once per envelope.
func Reply[Req, Resp any](env *Envelope[Req, Resp], value Resp, err error) {
	env.reply <- Result[Resp]{Value: value, Err: err}
}

// Serve runs a service's single receive loop: one goroutine pulls
// envelopes off inbox in arrival order and spawns an independent
// handler for each, so a slow handler can never head-of-line-block the
// inbox. Serve returns when inbox is closed.
func Serve[Req, Resp any](inbox Inbox[Req, Resp], handle func(ctx context.Context, req Req) (Resp, error)) {
	for env := range inbox {
		env := env
		go func() {
			resp, err := handle(context.Background(), env.Req)
			Reply(env, resp, err)
		}()
	}
}
