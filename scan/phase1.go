// Package scan implements the two-phase library scan engine.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/fs"
)

// runPhase1 walks libraryPath depth-first, same-filesystem, and for
// each regular file either skips it (unchanged), pushes a KnownFile
// (existing record, content needs re-linking), or registers it as a
// brand new media record. Fatal only if the walk itself fails or a
// database call reports a Channel-kind error; per-file failures are
// counted as warnings.
func runPhase1(ctx context.Context, run *RunContext, libraryPath string, cfg Config) error {
	limiter := cmn.NewLimitedWaitGroup(cfg.Threads)
	var errMu sync.Mutex
	var walkErr error

	err := fs.Walk(ctx, libraryPath, func(path string, info os.FileInfo) error {
		kind, ok := classify(path)
		if !ok {
			return nil
		}

		limiter.Add()
		go func() {
			defer limiter.Done()
			if err := registerOne(ctx, run, cfg, path, kind, info.ModTime().Unix()); err != nil {
				if cmn.Is(err, cmn.KindChannel) {
					errMu.Lock()
					if walkErr == nil {
						walkErr = err
					}
					errMu.Unlock()
					return
				}
				run.Warnings.Inc()
				cmn.Component("scan").Warnf("%s: %v", path, err)
			}
		}()
		return nil
	})
	limiter.Wait()

	if err != nil {
		return cmn.WrapBackend(err, "walk library")
	}
	errMu.Lock()
	defer errMu.Unlock()
	return walkErr
}

// registerOne implements Phase 1 steps 3-6 for a single file.
func registerOne(ctx context.Context, run *RunContext, cfg Config, path string, kind db.MediaKind, mtimeSecs int64) error {
	existing, err := run.Backend.GetMediaByPath(ctx, run.Library, path)
	if err != nil && !cmn.Is(err, cmn.KindNotFound) {
		return err
	}

	if existing != nil {
		if existing.Mtime >= mtimeSecs {
			run.FileCount.Inc()
			return nil
		}
		hash, err := contentHash(path)
		if err != nil {
			return err
		}
		run.pushKnown(KnownFile{Media: existing.ID, Path: path, ContentHash: hash, Mtime: existing.Mtime})
		return nil
	}

	hash, err := contentHash(path)
	if err != nil {
		return err
	}

	fctx, cancel := context.WithTimeout(ctx, cfg.FileTimeout)
	defer cancel()
	return registerNewFile(fctx, run, path, kind, mtimeSecs, hash)
}

// registerNewFile implements Phase 1 step 6 under a per-file timeout.
func registerNewFile(ctx context.Context, run *RunContext, path string, kind db.MediaKind, mtimeSecs int64, hash uint64) error {
	if !run.tryInsertHash(hash) {
		return nil // seen by another concurrent task this run
	}

	byHash, err := run.Backend.GetMediaByContentHash(ctx, run.Library, hash)
	if err != nil && !cmn.Is(err, cmn.KindNotFound) {
		return err
	}
	if byHash != nil {
		run.pushKnown(KnownFile{Media: byHash.ID, Path: path, ContentHash: hash, Mtime: mtimeSecs})
		return nil
	}

	scratch, err := run.fileScratch(hash)
	if err != nil {
		return err
	}
	defer scratch.Close()

	meta, err := run.Proc.Extract(ctx, path, kind)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	m := &db.Media{
		Library:        run.Library,
		Path:           path,
		Size:           info.Size(),
		ContentHash:    hash,
		PerceptualHash: meta.PerceptualHash,
		Mtime:          mtimeSecs,
		Hidden:         false,
		Date:           meta.Date.UTC().Format(time.RFC3339),
		Note:           "",
		Tags:           map[string]struct{}{},
		Kind:           kind,
	}
	id, err := run.Backend.AddMedia(ctx, m)
	if err != nil {
		return err
	}
	run.FileCount.Inc()

	if err := install(ctx, run, id, path, kind, scratch); err != nil {
		return err
	}
	return nil
}

// contentHash streams path through a 64-bit xxhash digest.
func contentHash(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, cmn.WrapBackend(err, "open %q for hashing", path)
	}
	defer f.Close()

	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return 0, cmn.WrapBackend(err, "hash %q", path)
	}
	return h.Sum64(), nil
}
