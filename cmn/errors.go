// Package cmn provides common low-level types and utilities shared by all pixelvault services.
// This file defines the error taxonomy every other package returns.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package cmn

import "fmt"

// Kind is the closed taxonomy of error categories a service may return.
// Every boundary (HTTP dispatch, the auth cache, the task supervisor)
// switches on Kind rather than inspecting error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformed
	KindUnauthorized
	KindNotFound
	KindConflict
	KindBackend
	KindChannel
	KindTimeout
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBackend:
		return "backend"
	case KindChannel:
		return "channel"
	case KindTimeout:
		return "timeout"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error is the one error type every package in this repository returns.
// It carries a Kind so callers can map it to policy (HTTP status, warning
// counter, memoize-or-not) without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewMalformed(format string, args ...interface{}) *Error {
	return newErr(KindMalformed, format, args...)
}

func NewUnauthorized(format string, args ...interface{}) *Error {
	return newErr(KindUnauthorized, format, args...)
}

func NewNotFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, format, args...)
}

func NewConflict(format string, args ...interface{}) *Error {
	return newErr(KindConflict, format, args...)
}

func NewInvalid(format string, args ...interface{}) *Error {
	return newErr(KindInvalid, format, args...)
}

// WrapBackend wraps a lower-level error (filesystem, SQL driver) as a
// Backend-kind Error, preserving the cause for logging.
func WrapBackend(cause error, format string, args ...interface{}) *Error {
	e := newErr(KindBackend, format, args...)
	e.Cause = cause
	return e
}

func WrapChannel(cause error, format string, args ...interface{}) *Error {
	e := newErr(KindChannel, format, args...)
	e.Cause = cause
	return e
}

func NewTimeout(format string, args ...interface{}) *Error {
	return newErr(KindTimeout, format, args...)
}

var (
	ErrChannelClosed = WrapChannel(nil, "service inbox closed")
)

// Assert panics if cond is false. Reserved for invariants that indicate a
// programming error rather than bad input.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}
