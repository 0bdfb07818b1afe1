// Package scan implements the two-phase library scan engine.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/media/stub"
	"github.com/pixelvault/pixelvault/scan"
)

// memBackend implements the slice of db.Backend the scan engine
// touches, in memory. Unimplemented methods panic via the embedded nil
// interface, which is what we want from a test double.
type memBackend struct {
	db.Backend
	mu    sync.Mutex
	libs  map[cmn.LibraryUuid]*db.Library
	media map[cmn.MediaUuid]*db.Media
}

func newMemBackend() *memBackend {
	return &memBackend{
		libs:  make(map[cmn.LibraryUuid]*db.Library),
		media: make(map[cmn.MediaUuid]*db.Media),
	}
}

func (b *memBackend) addLibrary(path string) cmn.LibraryUuid {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := cmn.NewLibraryUuid()
	b.libs[id] = &db.Library{ID: id, Path: path, OwnerGroup: "family"}
	return id
}

func (b *memBackend) GetLibrary(ctx context.Context, id cmn.LibraryUuid) (*db.Library, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lib, ok := b.libs[id]
	if !ok {
		return nil, cmn.NewNotFound("library %d", id)
	}
	cp := *lib
	return &cp, nil
}

func (b *memBackend) UpdateLibraryCount(ctx context.Context, id cmn.LibraryUuid, count, mtime int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lib, ok := b.libs[id]
	if !ok {
		return cmn.NewNotFound("library %d", id)
	}
	lib.MediaCount = count
	lib.Mtime = mtime
	return nil
}

func (b *memBackend) AddMedia(ctx context.Context, m *db.Media) (cmn.MediaUuid, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.media {
		if existing.Library == m.Library && existing.Path == m.Path {
			return 0, cmn.NewConflict("media path %q already exists in library", m.Path)
		}
	}
	cp := *m
	cp.ID = cmn.NewMediaUuid()
	b.media[cp.ID] = &cp
	return cp.ID, nil
}

func (b *memBackend) GetMedia(ctx context.Context, id cmn.MediaUuid) (*db.Media, []cmn.CollectionUuid, []db.Comment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.media[id]
	if !ok {
		return nil, nil, nil, cmn.NewNotFound("media %d", id)
	}
	cp := *m
	return &cp, nil, nil, nil
}

func (b *memBackend) GetMediaByPath(ctx context.Context, lib cmn.LibraryUuid, path string) (*db.Media, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.media {
		if m.Library == lib && m.Path == path {
			cp := *m
			return &cp, nil
		}
	}
	return nil, cmn.NewNotFound("media at path %q", path)
}

func (b *memBackend) GetMediaByContentHash(ctx context.Context, lib cmn.LibraryUuid, hash uint64) (*db.Media, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.media {
		if m.Library == lib && m.ContentHash == hash {
			cp := *m
			return &cp, nil
		}
	}
	return nil, cmn.NewNotFound("media with content hash %x", hash)
}

func (b *memBackend) ReplaceMediaPath(ctx context.Context, id cmn.MediaUuid, path string, hash uint64, mtime int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.media[id]
	if !ok {
		return cmn.NewNotFound("media %d", id)
	}
	m.Path, m.ContentHash, m.Mtime = path, hash, mtime
	return nil
}

func (b *memBackend) UpdateMedia(ctx context.Context, id cmn.MediaUuid, u db.MediaUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.media[id]
	if !ok {
		return cmn.NewNotFound("media %d", id)
	}
	if u.Hidden != nil {
		m.Hidden = *u.Hidden
	}
	if u.Date != nil {
		m.Date = *u.Date
	}
	if u.Note != nil {
		m.Note = *u.Note
	}
	if u.Tags != nil {
		m.Tags = u.Tags
	}
	return nil
}

func (b *memBackend) SearchMediaInLibrary(ctx context.Context, groups map[db.Group]struct{}, lib cmn.LibraryUuid, filter db.SearchFilter, includeHidden bool) ([]db.Media, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []db.Media
	for _, m := range b.media {
		if m.Library == lib && (includeHidden || !m.Hidden) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (b *memBackend) mediaCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.media)
}

func (b *memBackend) byPath(path string) *db.Media {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.media {
		if m.Path == path {
			cp := *m
			return &cp
		}
	}
	return nil
}

// fixture bundles a library on disk plus the directories a scan writes.
type fixture struct {
	backend *memBackend
	lib     cmn.LibraryUuid
	libDir  string
	cfg     scan.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	libDir := filepath.Join(root, "lib")
	linkDir := filepath.Join(root, "links")
	thumbDir := filepath.Join(root, "thumbs")
	for _, d := range []string{libDir, linkDir, thumbDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	backend := newMemBackend()
	return &fixture{
		backend: backend,
		lib:     backend.addLibrary(libDir),
		libDir:  libDir,
		cfg: scan.Config{
			Threads:     4,
			FileTimeout: 30 * time.Second,
			ScratchRoot: filepath.Join(root, "scratch"),
			Layout:      scan.Layout{LinkDir: linkDir, ThumbnailDir: thumbDir},
		},
	}
}

func (f *fixture) write(t *testing.T, rel, contents string) string {
	t.Helper()
	path := filepath.Join(f.libDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func (f *fixture) scan(t *testing.T) scan.Outcome {
	t.Helper()
	out := scan.Run(context.Background(), f.lib, f.cfg, f.backend, stub.Processor{}, stub.Thumbnailer{})
	require.NoError(t, out.Err)
	return out
}

func hashOf(contents string) uint64 {
	return xxhash.ChecksumString64(contents)
}

func linkName(id cmn.MediaUuid) string {
	return fmt.Sprintf("%016x", uint64(id))
}

func TestScanNewFile(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.jpg", "picture-bytes")

	out := f.scan(t)
	assert.Zero(t, out.Warnings)
	require.Equal(t, 1, f.backend.mediaCount())

	rec := f.backend.byPath(path)
	require.NotNil(t, rec)
	assert.Equal(t, hashOf("picture-bytes"), rec.ContentHash)
	assert.Equal(t, db.KindImage, rec.Kind)
	assert.False(t, rec.Hidden)
	assert.Empty(t, rec.Tags)

	link := filepath.Join(f.cfg.Layout.LinkDir, linkName(rec.ID))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, path, target)

	_, err = os.Stat(filepath.Join(f.cfg.Layout.ThumbnailDir, linkName(rec.ID)))
	assert.NoError(t, err)

	lib, err := f.backend.GetLibrary(context.Background(), f.lib)
	require.NoError(t, err)
	assert.EqualValues(t, 1, lib.MediaCount)
}

func TestScanMovedFile(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.jpg", "same-bytes")
	f.scan(t)
	orig := f.backend.byPath(path)
	require.NotNil(t, orig)

	moved := filepath.Join(f.libDir, "sub", "a.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(moved), 0o755))
	require.NoError(t, os.Rename(path, moved))

	out := f.scan(t)
	assert.Zero(t, out.Warnings)
	assert.Equal(t, 1, f.backend.mediaCount())

	rec, _, _, err := f.backend.GetMedia(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, moved, rec.Path)
	assert.Equal(t, orig.ContentHash, rec.ContentHash)
}

func TestScanEditedInPlace(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.jpg", "original-bytes")
	f.scan(t)
	orig := f.backend.byPath(path)
	require.NotNil(t, orig)

	// Rewrite in place with different contents and a strictly newer
	// mtime so the path-keyed check sees a stale record.
	f.write(t, "a.jpg", "edited-bytes")
	newMtime := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, newMtime, newMtime))

	out := f.scan(t)
	assert.Zero(t, out.Warnings)
	assert.Equal(t, 1, f.backend.mediaCount())

	rec, _, _, err := f.backend.GetMedia(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, path, rec.Path)
	assert.Equal(t, hashOf("edited-bytes"), rec.ContentHash)
	assert.Greater(t, rec.Mtime, orig.Mtime)
}

func TestScanMoveAndNewFileAtOldPath(t *testing.T) {
	f := newFixture(t)
	oldPath := f.write(t, "a.jpg", "h1-bytes")
	f.scan(t)
	orig := f.backend.byPath(oldPath)
	require.NotNil(t, orig)

	// Move the original aside and drop a different file at its path.
	movedPath := filepath.Join(f.libDir, "b.jpg")
	require.NoError(t, os.Rename(oldPath, movedPath))
	f.write(t, "a.jpg", "h2-bytes")
	newMtime := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(oldPath, newMtime, newMtime))

	out := f.scan(t)
	assert.Zero(t, out.Warnings)
	require.Equal(t, 2, f.backend.mediaCount())

	rec, _, _, err := f.backend.GetMedia(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, movedPath, rec.Path)
	assert.Equal(t, hashOf("h1-bytes"), rec.ContentHash)

	clone := f.backend.byPath(oldPath)
	require.NotNil(t, clone)
	assert.Equal(t, hashOf("h2-bytes"), clone.ContentHash)
	assert.Contains(t, clone.Tags, cmn.CloneTag(orig.ID))
}

func TestScanConcurrentDuplicatesRegisterOnce(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "identical-bytes")
	f.write(t, "b.jpg", "identical-bytes")

	out := f.scan(t)
	assert.Zero(t, out.Warnings)
	assert.Equal(t, 1, f.backend.mediaCount())
}

func TestScanUnchangedTreeIsFixedPoint(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "one")
	f.write(t, "nested/b.mp4", "two")
	f.write(t, "skipped.txt", "not media")

	first := f.scan(t)
	assert.Zero(t, first.Warnings)
	require.Equal(t, 2, f.backend.mediaCount())

	second := f.scan(t)
	assert.Zero(t, second.Warnings)
	assert.Equal(t, 2, f.backend.mediaCount())

	lib, err := f.backend.GetLibrary(context.Background(), f.lib)
	require.NoError(t, err)
	assert.EqualValues(t, 2, lib.MediaCount)
}

func TestScanScratchRemovedAfterRun(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "bytes")
	f.scan(t)

	entries, err := os.ReadDir(f.cfg.ScratchRoot)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanMarksMissingFiles(t *testing.T) {
	f := newFixture(t)
	keep := f.write(t, "keep.jpg", "kept")
	gone := f.write(t, "gone.jpg", "missing soon")
	f.scan(t)
	require.Equal(t, 2, f.backend.mediaCount())

	require.NoError(t, os.Remove(gone))
	out := scan.Clean(context.Background(), f.lib, f.backend)
	require.NoError(t, out.Err)
	assert.Zero(t, out.Warnings)

	assert.False(t, f.backend.byPath(keep).Hidden)
	assert.True(t, f.backend.byPath(gone).Hidden)
}

// channelDownBackend simulates a database whose connection has died
// mid-scan: every path lookup reports a Channel-kind failure.
type channelDownBackend struct {
	*memBackend
}

func (b *channelDownBackend) GetMediaByPath(ctx context.Context, lib cmn.LibraryUuid, path string) (*db.Media, error) {
	return nil, cmn.WrapChannel(nil, "database connection lost")
}

func TestScanAbortsWhenDatabaseChannelCloses(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.jpg", "one")
	f.write(t, "b.jpg", "two")

	down := &channelDownBackend{memBackend: f.backend}
	out := scan.Run(context.Background(), f.lib, f.cfg, down, stub.Processor{}, stub.Thumbnailer{})
	require.Error(t, out.Err)
	assert.True(t, cmn.Is(out.Err, cmn.KindChannel), "a dead database must abort the run, not degrade to warnings")
	assert.Zero(t, f.backend.mediaCount())
}
