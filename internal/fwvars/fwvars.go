// SPDX-License-Identifier: MPL-2.0

// Package fwvars manages the mutable firmware variable store handed to the
// emulator. The store persists between sessions like battery-backed NVRAM;
// Ensure never overwrites it and only Discard resets it.
package fwvars

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ErrTemplateMissing is returned when the read-only template cannot be found.
var ErrTemplateMissing = errors.New("firmware variable template not found")

// Ensure creates path as a copy of template when path does not exist. An
// existing store is left bit-for-bit unchanged. It reports whether a copy was
// made.
func Ensure(path, template string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		slog.Debug("firmware variable store present", "path", path)
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	src, err := os.Open(template)
	if errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("%w: %s", ErrTemplateMissing, template)
	} else if err != nil {
		return false, fmt.Errorf("open template: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	// O_EXCL so a store created concurrently is never clobbered.
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return false, fmt.Errorf("copy template to %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return false, fmt.Errorf("close %s: %w", path, err)
	}
	slog.Info("created firmware variable store", "path", path, "template", template)
	return true, nil
}

// Discard removes the store so the next launch starts from the template.
// Discarding a missing store is a no-op.
func Discard(path string) error {
	err := os.Remove(path)
	if err == nil {
		slog.Info("discarded firmware variable store", "path", path)
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove %s: %w", path, err)
}
