// Package fs provides filesystem primitives for the library scan: a
// depth-first, same-filesystem directory walk, and a scoped scratch
// directory abstraction.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package fs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"golang.org/x/sys/unix"
)

// WalkFunc is invoked once per regular file found beneath root. A
// returned error does not stop the walk; the caller decides whether to
// treat it as a warning or a fatal abort via ctx cancellation.
type WalkFunc func(path string, info os.FileInfo) error

// Walk traverses root depth-first, skipping any subtree that crosses
// onto a different filesystem than root itself, checked via the device
// id in unix.Stat_t. Traversal is contents-first: godirwalk visits a
// directory's entries before continuing to sibling directories.
func Walk(ctx context.Context, root string, fn WalkFunc) error {
	rootDev, err := deviceOf(root)
	if err != nil {
		return err
	}

	return godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if de.IsDir() {
				dev, err := deviceOf(path)
				if err != nil {
					return err
				}
				if dev != rootDev {
					return filepath.SkipDir
				}
				return nil
			}
			if !de.IsRegular() {
				return nil
			}
			info, err := os.Lstat(path)
			if err != nil {
				return err
			}
			return fn(path, info)
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
}

func deviceOf(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}
