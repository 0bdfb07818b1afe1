// Package media defines the external media-processing contracts the scan engine calls out to:
// metadata extraction and thumbnail generation. Concrete
// encoders/decoders are not part of this repository; package media/stub
// supplies a deterministic double, and a production build would wire an
// ffmpeg/libvips-backed implementation behind the same interfaces.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package media

import (
	"context"
	"time"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

// Metadata is what a Processor extracts from a single file.
type Metadata struct {
	Date           time.Time
	PerceptualHash uint64
	Kind           db.MediaKind
}

// Processor extracts Metadata for a file already classified as Image,
// Video, or Audio. Implementations must treat any failure
// (corrupt file, unsupported codec) as a per-file warning, not a fatal
// scan error - the caller is responsible for that propagation policy,
// not the Processor itself.
type Processor interface {
	Extract(ctx context.Context, path string, kind db.MediaKind) (Metadata, error)
}

// Thumbnailer produces a thumbnail image for a file at path, writing it
// to dstPath. Idempotent: called again for the same path it overwrites
// the prior output.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, path string, kind db.MediaKind, dstPath string) error
}

// ErrUnsupportedFormat signals a file that was classified as media but
// whose contents the processor cannot actually decode - a per-file
// warning case, never fatal.
func ErrUnsupportedFormat(path string) error {
	return cmn.NewInvalid("unsupported media format: %s", path)
}
