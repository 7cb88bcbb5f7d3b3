// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lock provides the exclusive pipeline run lock.
//
// At most one run may be active at a time process-wide: overlapping runs
// against the same published site tree and snapshot would corrupt both.
// The lock is advisory (flock on Unix, LockFileEx on Windows) on a dedicated
// lock file that also carries holder metadata for diagnostics. A second run
// request fails fast with ErrRunActive rather than queueing.
package lock

import "os"

// FileLocker abstracts platform-specific file locking.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use on different files.
type FileLocker interface {
	// Lock acquires an exclusive, non-blocking lock on the file.
	// Returns ErrRunActive when another holder has it.
	Lock(f *os.File) error

	// Unlock releases the lock. Safe to call when not locked.
	Unlock(f *os.File) error
}

// IsProcessAlive checks whether a process with the given PID is running.
// Used for stale-holder reporting; the advisory lock itself is released by
// the kernel when the holder dies.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// newFileLocker returns the platform-appropriate FileLocker.
func newFileLocker() FileLocker {
	return newPlatformLocker()
}
