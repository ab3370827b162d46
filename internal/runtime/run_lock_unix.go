// SPDX-License-Identifier: MPL-2.0

//go:build unix

package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// RunLock holds an exclusive flock on a lock file beside the mount point. The
// flock is dropped when the descriptor closes, including on a crash.
type RunLock struct {
	path string
	file *os.File
}

// AcquireRunLock takes the lock at path without blocking. A lock held by
// another process yields an error wrapping ErrRunLocked. owner is written into
// the file to help identify the holder.
func AcquireRunLock(path, owner string) (*RunLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrRunLocked)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = fmt.Fprintf(f, "pid=%d run=%s\n", os.Getpid(), owner)
	}

	return &RunLock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks and closes the lock file. Safe to call multiple times and on nil.
func (l *RunLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
