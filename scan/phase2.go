// Package scan implements the two-phase library scan engine.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package scan

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
)

// runPhase2 collates the known-file set by media id and resolves, for
// each media record, which on-disk file is now the real one, in strict
// precedence: untouched original, moved original, edited in place, or
// moved-plus-a-new-file-at-the-old-path (a clone).
func runPhase2(ctx context.Context, run *RunContext, cfg Config) error {
	byMedia := run.knownByMedia()
	limiter := cmn.NewLimitedWaitGroup(cfg.Threads)
	var errOnce sync.Once
	var firstErr error

	for media, files := range byMedia {
		media, files := media, files
		limiter.Add()
		go func() {
			defer limiter.Done()
			fctx, cancel := context.WithTimeout(ctx, cfg.FileTimeout)
			defer cancel()
			if err := resolveMedia(fctx, run, media, files); err != nil {
				if cmn.Is(err, cmn.KindChannel) {
					errOnce.Do(func() { firstErr = err })
					return
				}
				run.Warnings.Inc()
				cmn.Component("scan").Warnf("media %d: %v", media, err)
			}
		}()
	}
	limiter.Wait()
	return firstErr
}

// resolveMedia implements the precedence rule for one media record and
// its candidate on-disk files.
func resolveMedia(ctx context.Context, run *RunContext, id cmn.MediaUuid, files []KnownFile) error {
	rec, _, _, err := run.Backend.GetMedia(ctx, id)
	if err != nil {
		return err
	}

	real, rest := pickRealFile(rec, files)

	// The KnownFile may carry the record's mtime rather than the disk
	// file's (path-keyed discovery); the record must end up with the
	// real file's current one.
	mtime := real.Mtime
	if info, err := os.Stat(real.Path); err == nil {
		mtime = info.ModTime().Unix()
	}
	if err := run.Backend.ReplaceMediaPath(ctx, id, real.Path, real.ContentHash, mtime); err != nil {
		return err
	}
	run.FileCount.Inc()

	if len(rest) == 0 {
		return nil
	}
	// At most one file remains by construction: the original was moved
	// and a new file now sits at the original path.
	clone := rest[0]
	return resolveClone(ctx, run, id, clone)
}

// pickRealFile applies the three-way precedence rule, and returns the
// chosen file plus whatever remains after removing pure-hash duplicates
// and the chosen file itself.
func pickRealFile(rec *db.Media, files []KnownFile) (KnownFile, []KnownFile) {
	// Case 1: untouched original.
	for _, f := range files {
		if f.ContentHash == rec.ContentHash && f.Path == rec.Path {
			return f, removeHashDuplicates(files, f, rec.ContentHash)
		}
	}

	// Case 2: moved - any hash match, smallest mtime wins.
	var hashMatches []KnownFile
	for _, f := range files {
		if f.ContentHash == rec.ContentHash {
			hashMatches = append(hashMatches, f)
		}
	}
	if len(hashMatches) > 0 {
		sort.Slice(hashMatches, func(i, j int) bool { return hashMatches[i].Mtime < hashMatches[j].Mtime })
		real := hashMatches[0]
		return real, removeHashDuplicates(files, real, rec.ContentHash)
	}

	// Case 3: edited in place - by construction there is a path match.
	for _, f := range files {
		if f.Path == rec.Path {
			rest := make([]KnownFile, 0, len(files)-1)
			for _, other := range files {
				if other != f {
					rest = append(rest, other)
				}
			}
			return f, rest
		}
	}

	// Unreachable by construction, but fail safe rather than panic:
	// treat the first file as real.
	return files[0], files[1:]
}

// removeHashDuplicates drops every pure-hash duplicate of the chosen
// real file (same hash, any path) and the chosen file itself, leaving
// only files with a different hash - candidates for the clone case.
func removeHashDuplicates(files []KnownFile, real KnownFile, hash uint64) []KnownFile {
	rest := make([]KnownFile, 0, len(files))
	for _, f := range files {
		if f == real || f.ContentHash == hash {
			continue
		}
		rest = append(rest, f)
	}
	return rest
}

// resolveClone handles the file left at the media's original path after
// a move: reuse an existing record by hash, or register a new one and
// tag it as a clone of the original.
func resolveClone(ctx context.Context, run *RunContext, original cmn.MediaUuid, file KnownFile) error {
	byHash, err := run.Backend.GetMediaByContentHash(ctx, run.Library, file.ContentHash)
	if err != nil && !cmn.Is(err, cmn.KindNotFound) {
		return err
	}

	var cloneID cmn.MediaUuid
	if byHash != nil {
		cloneID = byHash.ID
	} else {
		kind, ok := classify(file.Path)
		if !ok {
			return cmn.NewInvalid("clone candidate %q has unrecognized extension", file.Path)
		}
		scratch, err := run.fileScratch(file.ContentHash)
		if err != nil {
			return err
		}
		defer scratch.Close()

		meta, err := run.Proc.Extract(ctx, file.Path, kind)
		if err != nil {
			return err
		}
		m := &db.Media{
			Library:        run.Library,
			Path:           file.Path,
			ContentHash:    file.ContentHash,
			PerceptualHash: meta.PerceptualHash,
			Mtime:          file.Mtime,
			Tags:           map[string]struct{}{},
			Kind:           kind,
		}
		id, err := run.Backend.AddMedia(ctx, m)
		if err != nil {
			return err
		}
		if err := install(ctx, run, id, file.Path, kind, scratch); err != nil {
			return err
		}
		cloneID = id
	}

	tags, err := cloneTagFor(run, ctx, cloneID, original)
	if err != nil {
		return err
	}
	if err := run.Backend.UpdateMedia(ctx, cloneID, db.MediaUpdate{Tags: tags}); err != nil {
		return err
	}
	run.FileCount.Inc()
	return nil
}

// cloneTagFor merges the CLONE:<original> tag into cloneID's existing
// tag set.
func cloneTagFor(run *RunContext, ctx context.Context, cloneID, original cmn.MediaUuid) (map[string]struct{}, error) {
	rec, _, _, err := run.Backend.GetMedia(ctx, cloneID)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]struct{}, len(rec.Tags)+1)
	for t := range rec.Tags {
		tags[t] = struct{}{}
	}
	tags[cmn.CloneTag(original)] = struct{}{}
	return tags, nil
}
