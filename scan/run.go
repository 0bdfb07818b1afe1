// Package scan implements the two-phase library scan engine.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/media"
)

// Run executes one full scan of library: Phase 1 (walk and register),
// then Phase 2 (deduplicate known files), then the final library-count
// write. The returned Outcome carries the non-fatal warning count;
// Err is set only on framework breakage: scratch unusable, database
// unreachable.
func Run(ctx context.Context, library cmn.LibraryUuid, cfg Config, backend db.Backend, proc media.Processor, thumb media.Thumbnailer) Outcome {
	runID := uuid.NewString()
	log := cmn.Component("scan").WithField("run", runID)

	lib, err := backend.GetLibrary(ctx, library)
	if err != nil {
		return Outcome{Err: err}
	}

	run, err := NewRunContext(library, cfg, backend, proc, thumb)
	if err != nil {
		return Outcome{Err: err}
	}
	defer run.Close()

	log.Infof("scan started: %s", lib.Path)

	if err := runPhase1(ctx, run, lib.Path, cfg); err != nil {
		return Outcome{Warnings: int(run.Warnings.Load()), Err: err}
	}
	if err := runPhase2(ctx, run, cfg); err != nil {
		return Outcome{Warnings: int(run.Warnings.Load()), Err: err}
	}

	count := run.FileCount.Load()
	if err := backend.UpdateLibraryCount(ctx, library, count, time.Now().Unix()); err != nil {
		return Outcome{Warnings: int(run.Warnings.Load()), Err: err}
	}

	warnings := int(run.Warnings.Load())
	log.Infof("scan finished: %d files, %d warnings", count, warnings)
	return Outcome{Warnings: warnings}
}
