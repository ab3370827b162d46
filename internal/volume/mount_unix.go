// SPDX-License-Identifier: MPL-2.0

//go:build unix

package volume

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMounted reports whether path is an active mount point. A missing path is
// not mounted. A path whose device differs from its parent's, or which is its
// own parent, is a mount point.
func IsMounted(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	var self, parent unix.Stat_t
	if err := unix.Stat(abs, &self); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", abs, err)
	}
	if self.Mode&unix.S_IFMT != unix.S_IFDIR {
		return false, nil
	}
	if err := unix.Stat(filepath.Dir(abs), &parent); err != nil {
		return false, fmt.Errorf("stat %s: %w", filepath.Dir(abs), err)
	}
	if self.Dev != parent.Dev {
		return true, nil
	}
	return self.Ino == parent.Ino, nil
}
