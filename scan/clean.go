// Package scan implements the two-phase library scan engine.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan

import (
	"context"
	"os"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

// Clean walks a library's media records (not its filesystem) and marks
// every record whose current path no longer exists on disk as hidden.
// Records are never deleted as part of normal flow; clean marks them,
// and a later re-scan of a restored file un-hides nothing - the mark
// is an operator signal, not a tombstone.
func Clean(ctx context.Context, library cmn.LibraryUuid, backend db.Backend) Outcome {
	log := cmn.Component("scan")

	lib, err := backend.GetLibrary(ctx, library)
	if err != nil {
		return Outcome{Err: err}
	}

	scope := map[db.Group]struct{}{lib.OwnerGroup: {}}
	records, err := backend.SearchMediaInLibrary(ctx, scope, library, db.FilterNone{}, true)
	if err != nil {
		return Outcome{Err: err}
	}

	warnings := 0
	hidden := true
	for _, rec := range records {
		if ctx.Err() != nil {
			return Outcome{Warnings: warnings, Err: ctx.Err()}
		}
		_, statErr := os.Stat(rec.Path)
		switch {
		case statErr == nil:
			continue
		case os.IsNotExist(statErr):
			if rec.Hidden {
				continue
			}
			if err := backend.UpdateMedia(ctx, rec.ID, db.MediaUpdate{Hidden: &hidden}); err != nil {
				warnings++
				log.Warnf("%s: mark missing: %v", rec.Path, err)
			}
		default:
			warnings++
			log.Warnf("%s: %v", rec.Path, statErr)
		}
	}
	return Outcome{Warnings: warnings}
}
