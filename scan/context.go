// Package scan implements the two-phase library scan engine: Phase 1
// walks the library root and registers new or changed files; Phase 2
// collates files already linked to a media record and resolves which
// on-disk file is now the real one.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/fs"
	"github.com/pixelvault/pixelvault/media"
)

// Config bounds one scan run: scan_threads, scan_timeout, the scratch
// root, and the install-time directory layout for symlinks and
// thumbnails.
type Config struct {
	Threads     int
	FileTimeout time.Duration
	ScratchRoot string
	Layout      Layout
}

// Layout names the install-time directory roots. An empty field
// disables that half of install (used by tests that only exercise
// metadata/dedup logic).
type Layout struct {
	LinkDir      string
	ThumbnailDir string
}

// KnownFile is a file linked to an existing media record by path or
// hash, discovered during Phase 1, consumed by Phase 2.
type KnownFile struct {
	Media       cmn.MediaUuid
	Path        string
	ContentHash uint64
	Mtime       int64
}

// RunContext is the per-scan, shared-state bundle: atomic counters, the
// two concurrent sets, and the run-scoped scratch subtree. All mutation
// from concurrent Phase 1 tasks goes through its own methods, each a
// single idempotent insert.
type RunContext struct {
	Library cmn.LibraryUuid
	Backend db.Backend
	Proc    media.Processor
	Thumb   media.Thumbnailer
	Layout  Layout

	FileCount *atomic.Int64
	Warnings  *atomic.Int64

	scratch *fs.Scratch

	knownMu sync.Mutex
	known   []KnownFile

	seenMu   sync.Mutex
	seenHash map[uint64]struct{}
}

func NewRunContext(library cmn.LibraryUuid, cfg Config, backend db.Backend, proc media.Processor, thumb media.Thumbnailer) (*RunContext, error) {
	scratch, err := fs.NewScratch(filepath.Join(cfg.ScratchRoot, libraryDirName(library)))
	if err != nil {
		return nil, err
	}
	return &RunContext{
		Library:   library,
		Backend:   backend,
		Proc:      proc,
		Thumb:     thumb,
		Layout:    cfg.Layout,
		FileCount: atomic.NewInt64(0),
		Warnings:  atomic.NewInt64(0),
		scratch:   scratch,
		seenHash:  make(map[uint64]struct{}),
	}, nil
}

// Close recursively removes the run's scratch subtree. Failure is
// logged and swallowed, never raised.
func (r *RunContext) Close() {
	r.scratch.Close()
}

// pushKnown records a file linked to an existing media record.
func (r *RunContext) pushKnown(kf KnownFile) {
	r.knownMu.Lock()
	r.known = append(r.known, kf)
	r.knownMu.Unlock()
}

// knownByMedia collates the known-file set by media id, called once
// after Phase 1's join.
func (r *RunContext) knownByMedia() map[cmn.MediaUuid][]KnownFile {
	r.knownMu.Lock()
	defer r.knownMu.Unlock()
	out := make(map[cmn.MediaUuid][]KnownFile, len(r.known))
	for _, kf := range r.known {
		out[kf.Media] = append(out[kf.Media], kf)
	}
	return out
}

// tryInsertHash attempts to register hash as seen this run. Returns
// true if it was newly inserted, false if another concurrent task
// already claimed it - the within-run dedup check of Phase 1 step 6.
func (r *RunContext) tryInsertHash(hash uint64) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, ok := r.seenHash[hash]; ok {
		return false
	}
	r.seenHash[hash] = struct{}{}
	return true
}

func (r *RunContext) fileScratch(hash uint64) (*fs.Scratch, error) {
	return r.scratch.Sub(hashHex(hash))
}

func libraryDirName(id cmn.LibraryUuid) string {
	return hashHex(uint64(id))
}

func hashHex(h uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(buf)
}

// classify maps a filename extension to a MediaKind, or reports ok=false
// for extensions that should be skipped entirely.
func classify(path string) (db.MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".bmp", ".tiff":
		return db.KindImage, true
	case ".mp4", ".mov", ".mkv", ".avi", ".webm", ".m4v":
		return db.KindVideo, true
	case ".mp3", ".flac", ".wav", ".m4a", ".ogg":
		return db.KindAudio, true
	default:
		return "", false
	}
}

// Outcome is the terminal result of a scan run: warnings is always
// meaningful; err is set only on framework-level failure (scratch
// unusable, database unreachable).
type Outcome struct {
	Warnings int
	Err      error
}
