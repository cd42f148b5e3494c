// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// FileLock is the exclusive advisory lock guarding a state directory.
// It is held from reconciliation through the last artifact write and
// released unconditionally on every exit path.
//
// FileLock is not safe for concurrent use; each invocation creates its
// own instance. Uses flock(2), so a crashed holder releases implicitly.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock for the given state directory. The lock file
// lives inside the directory it protects.
func NewFileLock(stateDir string) *FileLock {
	return &FileLock{path: filepath.Join(stateDir, LockFileName)}
}

// Acquire takes the lock without blocking. A second invocation against
// the same state directory fails fast with ErrConcurrentRun rather than
// queueing; this is a single-operator tool.
func (l *FileLock) Acquire() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening lock file: %v", ErrLockAcquireFailed, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w (lock held on %s)", ErrConcurrentRun, l.path)
		}
		return fmt.Errorf("%w: flock: %v", ErrLockAcquireFailed, err)
	}

	// Record the holder for operator debugging. Failure here is not
	// worth aborting a run that already holds the lock.
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = fmt.Fprintf(file, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))

	l.file = file
	return nil
}

// Release drops the lock and removes the lock file. Safe to call more
// than once and on an unacquired lock.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return err
}

// HolderPID reads the PID recorded by the current holder, or 0 when the
// lock file is absent or unparseable.
func (l *FileLock) HolderPID() int {
	content, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	var pid int
	if _, err := fmt.Sscanf(string(content), "pid=%d", &pid); err != nil {
		return 0
	}
	return pid
}
