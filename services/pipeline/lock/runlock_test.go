// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestAcquireRelease verifies the basic lifecycle: the lock file exists
// while held and is removed on release.
func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")
	l, err := NewRunLock(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Acquire("run-1"))
	assert.FileExists(t, path)

	holder := l.Holder()
	require.NotNil(t, holder)
	assert.Equal(t, "run-1", holder.RunID)
	assert.Equal(t, os.Getpid(), holder.PID)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, path)
}

// TestAcquireConflict verifies a second locker is rejected fail-fast
// while the first holds the lock.
func TestAcquireConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")

	first, err := NewRunLock(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Acquire("run-1"))
	defer first.Release()

	second, err := NewRunLock(path, testLogger())
	require.NoError(t, err)

	err = second.Acquire("run-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunActive)

	var held *HeldError
	if assert.ErrorAs(t, err, &held) {
		assert.Equal(t, path, held.Path)
	}
}

// TestReacquireAfterRelease verifies the lock is usable again once
// released.
func TestReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")
	l, err := NewRunLock(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Acquire("run-1"))
	require.NoError(t, l.Release())

	require.NoError(t, l.Acquire("run-2"))
	holder := l.Holder()
	require.NotNil(t, holder)
	assert.Equal(t, "run-2", holder.RunID)
	require.NoError(t, l.Release())
}

// TestSelfReacquireRejected verifies acquiring a lock this process
// already holds is rejected, never granted twice.
func TestSelfReacquireRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")
	l, err := NewRunLock(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Acquire("run-1"))
	defer l.Release()

	err = l.Acquire("run-2")
	assert.ErrorIs(t, err, ErrRunActive)
}

// TestNewRunLockCreatesParentDir verifies missing parent directories are
// created.
func TestNewRunLockCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "pipeline.lock")
	l, err := NewRunLock(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Acquire("run-1"))
	require.NoError(t, l.Release())
}

// TestHolderNoLock verifies Holder on an unheld lock reports nothing.
func TestHolderNoLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.lock")
	l, err := NewRunLock(path, testLogger())
	require.NoError(t, err)

	assert.Nil(t, l.Holder())
}
