// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager builds a manager over temp dirs with a steppable clock.
func newTestManager(t *testing.T) (*Manager, *time.Time) {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(Config{
		SnapshotDir:   filepath.Join(root, "snapshots"),
		QuarantineDir: filepath.Join(root, "quarantine"),
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

// writeSite creates a small site tree for snapshot tests.
func writeSite(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "posts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts", "one.html"), []byte("post"), 0o644))
}

// TestCreateCopiesTree verifies a snapshot is a full recursive copy.
func TestCreateCopiesTree(t *testing.T) {
	m, _ := newTestManager(t)
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	h, err := m.Create(site)
	require.NoError(t, err)

	assert.Equal(t, 2, h.FileCount)
	assert.Equal(t, site, h.SourceDir)
	assert.DirExists(t, h.Path)

	data, err := os.ReadFile(filepath.Join(h.Path, "posts", "one.html"))
	require.NoError(t, err)
	assert.Equal(t, "post", string(data))
}

// TestCreateMissingSource verifies a missing source yields an empty
// snapshot rather than an error.
func TestCreateMissingSource(t *testing.T) {
	m, _ := newTestManager(t)

	h, err := m.Create(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, 0, h.FileCount)
	assert.DirExists(t, h.Path)
}

// TestRestoreQuarantinesCurrentTree verifies restore replaces the site
// from the snapshot and preserves the corrupted tree in quarantine.
func TestRestoreQuarantinesCurrentTree(t *testing.T) {
	m, now := newTestManager(t)
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	h, err := m.Create(site)
	require.NoError(t, err)

	// Corrupt the site, then restore.
	require.NoError(t, os.WriteFile(filepath.Join(site, "index.html"), []byte("garbage"), 0o644))
	*now = now.Add(time.Hour)

	require.NoError(t, m.Restore(h))

	data, err := os.ReadFile(filepath.Join(site, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))

	// The corrupted tree was moved to quarantine, not deleted.
	entries, err := os.ReadDir(m.quarantineDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	quarantined, err := os.ReadFile(filepath.Join(m.quarantineDir, entries[0].Name(), "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(quarantined))
}

// TestRestoreWhenQuarantineCrossesFilesystems verifies restore still fully
// replaces the site when the quarantine directory is on another filesystem
// and rename falls back to copy-then-remove. Files written by a bad run
// must not survive the restore.
func TestRestoreWhenQuarantineCrossesFilesystems(t *testing.T) {
	m, now := newTestManager(t)
	m.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	h, err := m.Create(site)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(site, "junk.html"), []byte("junk"), 0o644))
	*now = now.Add(time.Hour)

	require.NoError(t, m.Restore(h))

	assert.NoFileExists(t, filepath.Join(site, "junk.html"))
	data, err := os.ReadFile(filepath.Join(site, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))

	// The moved-aside tree, junk included, sits in quarantine.
	entries, err := os.ReadDir(m.quarantineDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.FileExists(t, filepath.Join(m.quarantineDir, entries[0].Name(), "junk.html"))
}

// TestRestoreAbortsWhenQuarantineFails verifies a quarantine failure leaves
// the site untouched rather than merging the snapshot over it.
func TestRestoreAbortsWhenQuarantineFails(t *testing.T) {
	m, _ := newTestManager(t)
	m.rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	h, err := m.Create(site)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(site, "junk.html"), []byte("junk"), 0o644))
	// Make the fallback copy fail too.
	require.NoError(t, os.RemoveAll(m.quarantineDir))
	require.NoError(t, os.WriteFile(m.quarantineDir, []byte("in the way"), 0o644))

	err = m.Restore(h)
	require.Error(t, err)
	var snapErr *Error
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, "restore", snapErr.Op)

	// The damaged tree is still there, untouched, for the operator.
	assert.FileExists(t, filepath.Join(site, "junk.html"))
}

// TestRestoreStaleHandle verifies a removed snapshot is an error, never a
// silent no-op.
func TestRestoreStaleHandle(t *testing.T) {
	m, _ := newTestManager(t)
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	h, err := m.Create(site)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(h.Path))

	err = m.Restore(h)
	require.Error(t, err)

	var snapErr *Error
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, "restore", snapErr.Op)

	err = m.Restore(nil)
	assert.Error(t, err)
}

// TestQuarantine verifies soft-delete semantics.
func TestQuarantine(t *testing.T) {
	m, _ := newTestManager(t)
	victim := filepath.Join(t.TempDir(), "stale.html")
	require.NoError(t, os.WriteFile(victim, []byte("old"), 0o644))

	dest, err := m.Quarantine(victim)
	require.NoError(t, err)
	assert.NoFileExists(t, victim)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	// Quarantining a missing path is a no-op.
	dest, err = m.Quarantine(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, dest)
}

// TestListNewestFirst verifies ordering and non-snapshot entries being
// ignored.
func TestListNewestFirst(t *testing.T) {
	m, now := newTestManager(t)
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	first, err := m.Create(site)
	require.NoError(t, err)
	*now = now.Add(time.Hour)
	second, err := m.Create(site)
	require.NoError(t, err)

	// Unrelated directories in the snapshot root are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(m.snapshotDir, "not-a-snapshot"), 0o755))

	handles, err := m.List()
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, second.Path, handles[0].Path)
	assert.Equal(t, first.Path, handles[1].Path)
}

// TestPruneRespectsRetention verifies only snapshots past the retention
// window are removed.
func TestPruneRespectsRetention(t *testing.T) {
	m, now := newTestManager(t)
	site := filepath.Join(t.TempDir(), "site")
	writeSite(t, site)

	old, err := m.Create(site)
	require.NoError(t, err)
	*now = now.Add(40 * 24 * time.Hour)
	recent, err := m.Create(site)
	require.NoError(t, err)

	removed, err := m.Prune(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, old.Path)
	assert.DirExists(t, recent.Path)
}

// TestNewManagerValidation verifies required directories.
func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Config{QuarantineDir: t.TempDir()})
	assert.Error(t, err)
	_, err = NewManager(Config{SnapshotDir: t.TempDir()})
	assert.Error(t, err)
}
