// Package tasks provides the per-domain background task supervisor.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package tasks

import (
	"context"

	"github.com/pixelvault/pixelvault/cmn"
)

// Request is the message union for the task-supervisor service inbox.
// The set is sealed: the supervisor's control plane accepts exactly
// these three operations from dispatch, plus the internal completion
// path handled by supervise itself.
type Request interface {
	isTaskRequest()
}

// StartRequest asks the supervisor to start Fn under domain's slot.
type StartRequest struct {
	Domain Domain
	Kind   Kind
	User   string
	Fn     Func
}

func (StartRequest) isTaskRequest() {}

// StopRequest fires the cancel token of domain's running task, if any.
type StopRequest struct {
	Domain Domain
}

func (StopRequest) isTaskRequest() {}

// ShowRequest asks for the running entry (if any) followed by history,
// newest first.
type ShowRequest struct {
	Domain Domain
}

func (ShowRequest) isTaskRequest() {}

// Response carries the answer to any Request variant; fields not
// meaningful for the request kind are zero.
type Response struct {
	Stopped bool
	Entries []Entry
}

// Handle is the supervisor's envelope handler, wired to its inbox via
// registry.Serve. Each call runs in its own spawned goroutine, so a
// slow Start cannot block a concurrent Show.
func (s *Supervisor) Handle(ctx context.Context, req Request) (Response, error) {
	switch r := req.(type) {
	case StartRequest:
		return Response{}, s.StartTask(ctx, r.Domain, r.Kind, r.User, r.Fn)
	case StopRequest:
		return Response{Stopped: s.StopTask(r.Domain)}, nil
	case ShowRequest:
		return Response{Entries: s.ShowTasks(r.Domain)}, nil
	default:
		return Response{}, cmn.NewInvalid("unknown task request %T", req)
	}
}
