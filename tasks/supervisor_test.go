// Package tasks provides the per-domain background task supervisor.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/tasks"
)

func waitUntilNotRunning(t *testing.T, sup *tasks.Supervisor, d tasks.Domain) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for sup.IsRunning(d) {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for task to complete")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartTaskRejectsInvalidKindForDomain(t *testing.T) {
	sup := tasks.NewSupervisor()
	err := sup.StartTask(context.Background(), tasks.SystemDomain, tasks.ScanLibrary, "alice",
		func(ctx context.Context) tasks.Outcome { return tasks.Outcome{} })
	require.Error(t, err)

	lib := tasks.LibraryDomain(cmn.NewLibraryUuid())
	err = sup.StartTask(context.Background(), lib, tasks.CacheScrub, "alice",
		func(ctx context.Context) tasks.Outcome { return tasks.Outcome{} })
	require.Error(t, err)
}

func TestAtMostOneRunningPerDomain(t *testing.T) {
	sup := tasks.NewSupervisor()
	lib := tasks.LibraryDomain(cmn.NewLibraryUuid())

	started := make(chan struct{})
	release := make(chan struct{})
	err := sup.StartTask(context.Background(), lib, tasks.ScanLibrary, "alice",
		func(ctx context.Context) tasks.Outcome {
			close(started)
			<-release
			return tasks.Outcome{Warnings: 3}
		})
	require.NoError(t, err)
	<-started

	err = sup.StartTask(context.Background(), lib, tasks.ScanLibrary, "bob",
		func(ctx context.Context) tasks.Outcome { return tasks.Outcome{} })
	require.Error(t, err)
	assert.True(t, cmn.Is(err, cmn.KindConflict))

	entries := sup.ShowTasks(lib)
	require.Len(t, entries, 1)
	assert.Equal(t, tasks.Running, entries[0].Status)

	close(release)
	waitUntilNotRunning(t, sup, lib)

	entries = sup.ShowTasks(lib)
	require.Len(t, entries, 1)
	assert.Equal(t, tasks.Success, entries[0].Status)
	assert.Equal(t, 3, entries[0].Warnings)
}

func TestStopTaskProducesAborted(t *testing.T) {
	sup := tasks.NewSupervisor()
	lib := tasks.LibraryDomain(cmn.NewLibraryUuid())

	started := make(chan struct{})
	err := sup.StartTask(context.Background(), lib, tasks.CleanLibrary, "alice",
		func(ctx context.Context) tasks.Outcome {
			close(started)
			<-ctx.Done()
			return tasks.Outcome{Err: ctx.Err()}
		})
	require.NoError(t, err)
	<-started

	assert.True(t, sup.StopTask(lib))
	waitUntilNotRunning(t, sup, lib)

	entries := sup.ShowTasks(lib)
	require.Len(t, entries, 1)
	assert.Equal(t, tasks.Aborted, entries[0].Status)
}

func TestStopTaskOnIdleDomainReturnsFalse(t *testing.T) {
	sup := tasks.NewSupervisor()
	lib := tasks.LibraryDomain(cmn.NewLibraryUuid())
	assert.False(t, sup.StopTask(lib))
}

func TestHistoryRingBufferCapsAt64AndNewestFirst(t *testing.T) {
	sup := tasks.NewSupervisor()
	lib := tasks.LibraryDomain(cmn.NewLibraryUuid())

	for i := 0; i < 70; i++ {
		warnings := i
		err := sup.StartTask(context.Background(), lib, tasks.RunScripts, "alice",
			func(ctx context.Context) tasks.Outcome { return tasks.Outcome{Warnings: warnings} })
		require.NoError(t, err)
		waitUntilNotRunning(t, sup, lib)
	}

	entries := sup.ShowTasks(lib)
	require.Len(t, entries, 64)
	assert.Equal(t, 69, entries[0].Warnings, "newest entry must be first")
	assert.Equal(t, 6, entries[63].Warnings, "oldest 6 completions must have been evicted")
}
