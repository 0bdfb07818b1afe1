// Package fs provides filesystem primitives for the library scan.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package fs

import (
	"os"
	"path/filepath"

	"github.com/pixelvault/pixelvault/cmn"
)

// Scratch is a scoped scratch directory: created eagerly on
// construction, recursively removed on Close. Removal failure is
// logged as a warning and swallowed, never returned; a leftover
// scratch entry costs disk, not correctness.
type Scratch struct {
	path string
	log  interface {
		Warnf(format string, args ...interface{})
	}
}

// NewScratch creates dir (and any missing parents) and returns a handle
// that will recursively remove it on Close.
func NewScratch(dir string) (*Scratch, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cmn.WrapBackend(err, "create scratch dir %q", dir)
	}
	return &Scratch{path: dir, log: cmn.Component("fs")}, nil
}

func (s *Scratch) Path() string { return s.path }

// Sub creates and returns a handle for a scoped subdirectory, e.g. a
// per-file scratch dir beneath a per-run one.
func (s *Scratch) Sub(name string) (*Scratch, error) {
	return NewScratch(filepath.Join(s.path, name))
}

func (s *Scratch) Close() {
	if err := os.RemoveAll(s.path); err != nil {
		s.log.Warnf("failed to remove scratch dir %q: %v", s.path, err)
	}
}
