// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package lock

import (
	"os"
	"syscall"
)

// unixFileLocker implements FileLocker with flock(2).
//
// Locks are advisory, released on file close or process exit, and
// non-blocking via LOCK_NB.
type unixFileLocker struct{}

// Lock acquires an exclusive lock with LOCK_EX|LOCK_NB.
func (l *unixFileLocker) Lock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return ErrRunActive
		}
		return err
	}
	return nil
}

// Unlock releases the lock with LOCK_UN.
func (l *unixFileLocker) Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// isProcessAlive checks process existence by sending signal 0.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func newPlatformLocker() FileLocker {
	return &unixFileLocker{}
}
