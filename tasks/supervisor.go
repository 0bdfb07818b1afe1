// Package tasks provides the per-domain background task supervisor.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package tasks

import (
	"context"
	"sync"

	"github.com/pixelvault/pixelvault/cmn"
)

// Func is a long-running task body. It must respect ctx cancellation:
// stop_task's contract is "fire the cancel token," not "force-kill the
// goroutine."
type Func func(ctx context.Context) Outcome

// Supervisor owns one slot per domain, created lazily on first use.
type Supervisor struct {
	mu    sync.Mutex
	slots map[Domain]*slot
	log   interface {
		Warnf(format string, args ...interface{})
	}
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		slots: make(map[Domain]*slot),
		log:   cmn.Component("tasks"),
	}
}

func (s *Supervisor) slotFor(d Domain) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[d]
	if !ok {
		sl = newSlot()
		s.slots[d] = sl
	}
	return sl
}

// StartTask validates domain/kind compatibility, rejects if the slot is
// occupied, and spawns fn under a cancellable context. The slot lock is
// held across the tryStart call so observers never see a running task
// with an empty slot.
func (s *Supervisor) StartTask(ctx context.Context, domain Domain, kind Kind, user string, fn Func) error {
	if !kind.ValidFor(domain) {
		return cmn.NewInvalid("task kind %s is not valid for domain %s", kind, domain)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sl := s.slotFor(domain)
	if _, ok := sl.tryStart(kind, user, cancel); !ok {
		cancel()
		return cmn.NewConflict("a task is already running for domain %s", domain)
	}

	go s.supervise(runCtx, cancel, sl, fn)
	return nil
}

// supervise races the task body against context cancellation and
// always archives a terminal entry.
func (s *Supervisor) supervise(ctx context.Context, cancel context.CancelFunc, sl *slot, fn Func) {
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Outcome{Err: cmn.NewInvalid("task panicked: %v", r)}
				return
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case out := <-done:
		switch {
		case ctx.Err() != nil && out.Err == nil:
			// Cancelled but the task returned success anyway; the
			// cancellation still wins.
			sl.complete(Aborted, 0)
		case out.Err != nil:
			s.log.Warnf("task failed: %v", out.Err)
			sl.complete(Failure, out.Warnings)
		default:
			sl.complete(Success, out.Warnings)
		}
	case <-ctx.Done():
		// Cancelled: still wait for the task to actually unwind so we
		// never archive a completion before the goroutine has stopped
		// touching shared state.
		<-done
		sl.complete(Aborted, 0)
	}
}

// StopTask fires the domain's running task's cancellation, if any.
// Returns false if nothing was running to stop.
func (s *Supervisor) StopTask(domain Domain) bool {
	return s.slotFor(domain).stop()
}

// ShowTasks returns the running entry (if any) followed by history,
// newest first.
func (s *Supervisor) ShowTasks(domain Domain) []Entry {
	return s.slotFor(domain).snapshot()
}

// IsRunning reports whether domain currently has a task in flight.
func (s *Supervisor) IsRunning(domain Domain) bool {
	return s.slotFor(domain).isRunning()
}
