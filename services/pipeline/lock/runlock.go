// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrRunActive is returned when a run is requested while another run holds
// the lock. The new request is rejected; the active run is unaffected.
var ErrRunActive = errors.New("a pipeline run is already active")

// Info describes the current lock holder. It is written as JSON into the
// lock file for operator visibility.
type Info struct {
	// PID is the holding process.
	PID int `json:"pid"`

	// RunID is the run holding the lock.
	RunID string `json:"run_id"`

	// Hostname is where the holder runs.
	Hostname string `json:"hostname,omitempty"`

	// AcquiredAt is when the lock was taken.
	AcquiredAt time.Time `json:"acquired_at"`
}

// HeldError reports a rejected acquisition, with holder details when the
// lock file could be read.
type HeldError struct {
	// Path is the lock file path.
	Path string

	// Holder describes who has the lock, nil when unreadable.
	Holder *Info
}

// Error implements the error interface.
func (e *HeldError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("run lock %s held by pid %d (run %s, since %s)",
			e.Path, e.Holder.PID, e.Holder.RunID,
			e.Holder.AcquiredAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("run lock %s held by another process", e.Path)
}

// Unwrap makes errors.Is(err, ErrRunActive) hold.
func (e *HeldError) Unwrap() error {
	return ErrRunActive
}

// RunLock is the process-wide mutual exclusion for pipeline runs.
//
// # Description
//
// RunLock wraps an advisory file lock on a dedicated lock file. Acquire is
// non-blocking: when another process (or this one) already holds the lock,
// it fails fast with an error satisfying errors.Is(err, ErrRunActive).
// On acquisition the holder's metadata is written into the lock file, and an
// fsnotify watch warns when the lock file is tampered with externally while
// held. The kernel releases the advisory lock if the holder dies, so a
// crashed run never wedges the pipeline.
//
// # Thread Safety
//
// Safe for concurrent use from multiple goroutines.
type RunLock struct {
	path   string
	locker FileLocker
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	watcher *fsnotify.Watcher
}

// NewRunLock creates a run lock backed by the given lock file path. The
// parent directory is created if needed; the lock is not acquired yet.
func NewRunLock(path string, logger *slog.Logger) (*RunLock, error) {
	if path == "" {
		return nil, errors.New("lock path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLock{
		path:   path,
		locker: newFileLocker(),
		logger: logger,
	}, nil
}

// Acquire takes the exclusive run lock on behalf of a run.
//
// # Outputs
//
//   - error: nil on success; a *HeldError (unwrapping to ErrRunActive) when
//     another run holds the lock; other errors on system failure.
func (l *RunLock) Acquire(runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return &HeldError{Path: l.path, Holder: l.readInfo()}
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", l.path, err)
	}

	if err := l.locker.Lock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrRunActive) {
			holder := l.readInfo()
			if holder != nil && !IsProcessAlive(holder.PID) {
				// Kernel still reports the lock as held, so trust it;
				// the stale info is only cosmetic.
				l.logger.Warn("run lock holder process not found",
					"path", l.path,
					"holder_pid", holder.PID)
			}
			return &HeldError{Path: l.path, Holder: holder}
		}
		return fmt.Errorf("locking %s: %w", l.path, err)
	}

	info := Info{
		PID:        os.Getpid(),
		RunID:      runID,
		AcquiredAt: time.Now().UTC(),
	}
	if host, err := os.Hostname(); err == nil {
		info.Hostname = host
	}
	if err := writeInfo(f, &info); err != nil {
		l.locker.Unlock(f)
		f.Close()
		return fmt.Errorf("writing lock info: %w", err)
	}

	l.file = f
	l.startWatch()

	l.logger.Debug("acquired run lock",
		"path", l.path,
		"run_id", runID)
	return nil
}

// Release drops the run lock. Safe to call when not held.
func (l *RunLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	if l.watcher != nil {
		l.watcher.Close()
		l.watcher = nil
	}

	if err := l.locker.Unlock(l.file); err != nil {
		l.logger.Warn("failed to unlock run lock file",
			"path", l.path,
			"error", err)
	}
	err := l.file.Close()
	l.file = nil

	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		l.logger.Warn("failed to remove run lock file",
			"path", l.path,
			"error", rmErr)
	}

	l.logger.Debug("released run lock", "path", l.path)
	return err
}

// Holder returns the current holder info, or nil when the lock file is
// absent or unreadable. Intended for status surfaces, not for decisions:
// only Acquire decides.
func (l *RunLock) Holder() *Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readInfo()
}

// startWatch warns when the lock file is modified or removed by someone
// else while we hold it (must be called with mu held).
func (l *RunLock) startWatch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("run lock watcher unavailable", "error", err)
		return
	}
	if err := watcher.Add(l.path); err != nil {
		l.logger.Warn("failed to watch run lock file",
			"path", l.path,
			"error", err)
		watcher.Close()
		return
	}
	l.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					l.logger.Warn("run lock file modified externally while held",
						"path", l.path,
						"op", event.Op.String())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("run lock watcher error", "error", err)
			}
		}
	}()
}

// readInfo reads holder metadata from the lock file (best effort).
func (l *RunLock) readInfo() *Info {
	data, err := os.ReadFile(l.path)
	if err != nil || len(data) == 0 {
		return nil
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

// writeInfo truncates the lock file and writes holder metadata.
func writeInfo(f *os.File, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Sync()
}
