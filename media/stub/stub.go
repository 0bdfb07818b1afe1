// Package stub provides deterministic, dependency-free implementations
// of media.Processor and media.Thumbnailer for testing the scan engine
// without real codec libraries.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package stub

import (
	"context"
	"os"

	"github.com/OneOfOne/xxhash"

	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/media"
)

// Processor derives a deterministic perceptual hash from file contents
// (not a real perceptual algorithm - just stable across calls) and
// reports the file's mtime as its date.
type Processor struct{}

func (Processor) Extract(ctx context.Context, path string, kind db.MediaKind) (media.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return media.Metadata{}, err
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return media.Metadata{}, err
	}
	return media.Metadata{
		Date:           info.ModTime(),
		PerceptualHash: xxhash.Checksum64(contents),
		Kind:           kind,
	}, nil
}

// Thumbnailer writes a fixed-size placeholder file rather than a real
// downsampled image.
type Thumbnailer struct{}

func (Thumbnailer) Thumbnail(ctx context.Context, path string, kind db.MediaKind, dstPath string) error {
	return os.WriteFile(dstPath, []byte("thumbnail-placeholder"), 0o644)
}
