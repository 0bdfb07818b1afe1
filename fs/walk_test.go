// Package fs provides filesystem primitives for the library scan.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/fs"
)

func TestWalkVisitsAllNestedRegularFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "mid.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "deep.jpg"), []byte("x"), 0o644))

	var found []string
	err := fs.Walk(context.Background(), root, func(path string, info os.FileInfo) error {
		found = append(found, filepath.Base(path))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(found)
	assert.Equal(t, []string{"deep.jpg", "mid.jpg", "top.jpg"}, found)
}

func TestScratchCloseRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	s, err := fs.NewScratch(filepath.Join(root, "run"))
	require.NoError(t, err)
	require.DirExists(t, s.Path())

	sub, err := s.Sub("deadbeef")
	require.NoError(t, err)
	require.DirExists(t, sub.Path())

	sub.Close()
	assert.NoDirExists(t, sub.Path())

	s.Close()
	assert.NoDirExists(t, s.Path())
}
