// SPDX-License-Identifier: MPL-2.0

// Package assemble lays compiled artifacts out on a mounted boot volume.
package assemble

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// LoaderPath is the removable-media boot probe path UEFI firmware loads.
	LoaderPath = "EFI/BOOT/BOOTX64.EFI"
	// KernelPath is where the loader expects the kernel.
	KernelPath = "kernel.elf"

	// DefaultSettleDelay gives the host filesystem time to flush before detach.
	DefaultSettleDelay = 500 * time.Millisecond
)

type (
	// Artifacts are the compiled binaries to deploy.
	Artifacts struct {
		Loader string
		Kernel string
	}

	// MismatchError reports a copied file whose digest differs from its source.
	MismatchError struct {
		Source, Dest string
	}
)

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s does not match %s after copy", e.Dest, e.Source)
}

// Assemble copies the loader and kernel under mountPoint, verifies both copies
// and then waits for settle. It returns early if ctx is cancelled while waiting.
func Assemble(ctx context.Context, mountPoint string, a Artifacts, settle time.Duration) error {
	pairs := []struct{ src, dst string }{
		{a.Loader, filepath.Join(mountPoint, filepath.FromSlash(LoaderPath))},
		{a.Kernel, filepath.Join(mountPoint, KernelPath)},
	}
	for _, p := range pairs {
		if err := copyVerified(p.src, p.dst); err != nil {
			return err
		}
		slog.Debug("copied artifact", "src", p.src, "dst", p.dst)
	}

	if settle <= 0 {
		return nil
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	srcHash := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(in, srcHash)); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	dstSum, err := digest(dst)
	if err != nil {
		return err
	}
	if !bytes.Equal(srcHash.Sum(nil), dstSum) {
		return &MismatchError{Source: src, Dest: dst}
	}
	return nil
}

func digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
