// Package scan implements the two-phase library scan engine.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/fs"
)

// install removes any stale symlink/thumbnail for id and recreates both
// pointing at path. Idempotent. Either half of the layout may be left
// unset to disable it (used by tests exercising dedup logic only).
func install(ctx context.Context, run *RunContext, id cmn.MediaUuid, path string, kind db.MediaKind, scratch *fs.Scratch) error {
	if run.Layout.LinkDir != "" {
		link := filepath.Join(run.Layout.LinkDir, mediaFileName(id))
		if err := relink(link, path); err != nil {
			return err
		}
	}

	if run.Layout.ThumbnailDir != "" && run.Thumb != nil {
		thumbPath := filepath.Join(run.Layout.ThumbnailDir, mediaFileName(id))
		dst := filepath.Join(scratch.Path(), "thumb")
		if err := run.Thumb.Thumbnail(ctx, path, kind, dst); err != nil {
			return err
		}
		if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
			return cmn.WrapBackend(err, "remove stale thumbnail for media %d", id)
		}
		if err := os.Rename(dst, thumbPath); err != nil {
			return cmn.WrapBackend(err, "install thumbnail for media %d", id)
		}
	}
	return nil
}

func relink(link, target string) error {
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return cmn.WrapBackend(err, "remove stale symlink %q", link)
	}
	if err := os.Symlink(target, link); err != nil {
		return cmn.WrapBackend(err, "create symlink %q -> %q", link, target)
	}
	return nil
}

func mediaFileName(id cmn.MediaUuid) string {
	return hashHex(uint64(id))
}
