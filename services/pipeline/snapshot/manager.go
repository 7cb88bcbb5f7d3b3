// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot manages recovery snapshots of the published site tree.
//
// Every pipeline run starts from a timestamped full copy of the published
// output; if a run corrupts the site, the snapshot restores it. Snapshots
// are immutable after creation and retained until the age-based retention
// policy prunes them. Nothing in this package ever deletes live content:
// removals are realized as moves into a quarantine directory, so every
// snapshot stays restorable.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// timeFormat names snapshot and quarantine entries. Matches the naming the
// site's recovery runbook documents.
const timeFormat = "20060102_150405"

// snapshotPrefix marks snapshot directories inside the snapshot root.
const snapshotPrefix = "snapshot_"

// Error wraps any snapshot operation failure with its operation and path.
type Error struct {
	// Op is the failing operation: "create", "restore", "quarantine",
	// "list", or "prune".
	Op string

	// Path is the path involved.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Handle identifies one immutable snapshot.
type Handle struct {
	// Path is the snapshot directory.
	Path string `json:"path"`

	// SourceDir is the tree the snapshot was taken from.
	SourceDir string `json:"source_dir"`

	// CreatedAt is the snapshot timestamp.
	CreatedAt time.Time `json:"created_at"`

	// FileCount is the number of files copied.
	FileCount int `json:"file_count"`
}

// Config configures a Manager.
type Config struct {
	// SnapshotDir is where snapshots are written. Required.
	SnapshotDir string

	// QuarantineDir is where quarantined files are moved. Required.
	QuarantineDir string
}

// Manager creates, restores, lists, and prunes snapshots of one site tree.
//
// # Thread Safety
//
// Safe for concurrent use; individual operations are not transactional
// against concurrent external mutation of the trees involved.
type Manager struct {
	snapshotDir   string
	quarantineDir string
	now           func() time.Time
	rename        func(oldpath, newpath string) error
}

// NewManager creates a snapshot manager, creating its directories if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SnapshotDir == "" {
		return nil, fmt.Errorf("snapshot directory must not be empty")
	}
	if cfg.QuarantineDir == "" {
		return nil, fmt.Errorf("quarantine directory must not be empty")
	}
	for _, dir := range []string{cfg.SnapshotDir, cfg.QuarantineDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Manager{
		snapshotDir:   cfg.SnapshotDir,
		quarantineDir: cfg.QuarantineDir,
		now:           time.Now,
		rename:        os.Rename,
	}, nil
}

// Create copies the source tree into a new timestamped snapshot.
//
// # Description
//
// A missing or empty source produces an empty snapshot (a brand-new site
// has nothing to recover yet, which is itself a valid recovery point). Any
// read or write failure aborts with an *Error; a run must not start without
// a recovery point.
//
// # Outputs
//
//   - *Handle: the created snapshot.
//   - error: *Error with Op "create" on failure.
func (m *Manager) Create(sourceDir string) (*Handle, error) {
	createdAt := m.now().UTC()
	dest := filepath.Join(m.snapshotDir, snapshotPrefix+createdAt.Format(timeFormat))

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, &Error{Op: "create", Path: dest, Err: err}
	}

	count := 0
	if _, err := os.Stat(sourceDir); err == nil {
		count, err = copyTree(sourceDir, dest)
		if err != nil {
			return nil, &Error{Op: "create", Path: sourceDir, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return nil, &Error{Op: "create", Path: sourceDir, Err: err}
	}

	return &Handle{
		Path:      dest,
		SourceDir: sourceDir,
		CreatedAt: createdAt,
		FileCount: count,
	}, nil
}

// Restore replaces the source tree with the snapshot's contents.
//
// # Description
//
// The current tree is first moved into quarantine, never deleted, then the
// snapshot is copied back into place. A stale handle (snapshot directory
// removed since creation) is reported as an error, never silently ignored.
func (m *Manager) Restore(h *Handle) error {
	if h == nil {
		return &Error{Op: "restore", Path: "", Err: fmt.Errorf("nil snapshot handle")}
	}
	if info, err := os.Stat(h.Path); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		return &Error{Op: "restore", Path: h.Path, Err: fmt.Errorf("stale snapshot handle: %w", err)}
	}

	if _, err := os.Stat(h.SourceDir); err == nil {
		if _, err := m.Quarantine(h.SourceDir); err != nil {
			return &Error{Op: "restore", Path: h.SourceDir, Err: err}
		}
	}

	if err := os.MkdirAll(h.SourceDir, 0o755); err != nil {
		return &Error{Op: "restore", Path: h.SourceDir, Err: err}
	}
	if _, err := copyTree(h.Path, h.SourceDir); err != nil {
		return &Error{Op: "restore", Path: h.Path, Err: err}
	}
	return nil
}

// Quarantine moves a file or directory into the quarantine area instead of
// deleting it, and returns the quarantine destination. Moving a path that
// does not exist is a no-op returning an empty destination.
func (m *Manager) Quarantine(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", &Error{Op: "quarantine", Path: path, Err: err}
	}

	dest := filepath.Join(m.quarantineDir,
		m.now().UTC().Format(timeFormat)+"_"+filepath.Base(path))

	if err := m.rename(path, dest); err != nil {
		// Cross-device moves fall back to copy-then-remove. The copy
		// lands in quarantine first, so the removal is still a move,
		// never a destructive delete. Any failure along the way is
		// reported so callers (Restore especially) abort with the
		// source untouched instead of proceeding against a tree that
		// was never actually moved aside.
		if _, copyErr := copyTree(path, dest); copyErr != nil {
			return "", &Error{Op: "quarantine", Path: path, Err: copyErr}
		}
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return "", &Error{Op: "quarantine", Path: path, Err: rmErr}
		}
	}
	return dest, nil
}

// List returns all snapshots, newest first.
func (m *Manager) List() ([]Handle, error) {
	entries, err := os.ReadDir(m.snapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Op: "list", Path: m.snapshotDir, Err: err}
	}

	var handles []Handle
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), snapshotPrefix) {
			continue
		}
		createdAt, err := time.Parse(timeFormat, strings.TrimPrefix(entry.Name(), snapshotPrefix))
		if err != nil {
			continue
		}
		handles = append(handles, Handle{
			Path:      filepath.Join(m.snapshotDir, entry.Name()),
			CreatedAt: createdAt,
		})
	}

	sort.Slice(handles, func(i, j int) bool {
		return handles[i].CreatedAt.After(handles[j].CreatedAt)
	})
	return handles, nil
}

// Prune removes snapshots older than maxAge and returns how many were
// removed. This is the one sanctioned deletion path: retention is an
// explicit, age-based policy, applied by the operator or the daemon.
func (m *Manager) Prune(maxAge time.Duration) (int, error) {
	handles, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().UTC().Add(-maxAge)
	removed := 0
	for _, h := range handles {
		if h.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(h.Path); err != nil {
				return removed, &Error{Op: "prune", Path: h.Path, Err: err}
			}
			removed++
		}
	}
	return removed, nil
}

// copyTree recursively copies src into dst, returning the file count.
func copyTree(src, dst string) (int, error) {
	count := 0
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			// Sockets, devices, and symlinks have no business in a
			// published site tree; skip rather than fail the backup.
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// copyFile copies one regular file, preserving its mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
