// SPDX-License-Identifier: MPL-2.0

// Package symbols detaches debug information from the kernel binary so the
// deployed image stays small while a sidecar file keeps the symbols for the
// debugger.
package symbols

import (
	"context"
	"debug/elf"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bootforge/bootforge/internal/runtime"
)

// SidecarSuffix is appended to a binary's path to name its symbol file.
const SidecarSuffix = ".debug"

// Stripper separates symbols with objcopy.
type Stripper struct {
	runner  runtime.Runner
	objcopy string
}

// NewStripper creates a Stripper. An empty objcopy defaults to "objcopy".
func NewStripper(runner runtime.Runner, objcopy string) *Stripper {
	if objcopy == "" {
		objcopy = "objcopy"
	}
	return &Stripper{runner: runner, objcopy: objcopy}
}

// SidecarPath returns where the symbols of binary are kept.
func SidecarPath(binary string) string {
	return binary + SidecarSuffix
}

// HasSymbols reports whether the ELF file at path carries a symbol table or
// DWARF sections.
func HasSymbols(path string) (bool, error) {
	f, err := elf.Open(path)
	if err != nil {
		return false, fmt.Errorf("read ELF %s: %w", path, err)
	}
	defer f.Close()

	for _, s := range f.Sections {
		if s.Type == elf.SHT_SYMTAB || strings.HasPrefix(s.Name, ".debug_") {
			return true, nil
		}
	}
	return false, nil
}

// Strip extracts the symbols of binary into its sidecar and strips the binary
// in place. A binary without symbols is left untouched and its existing
// sidecar is kept, so repeated calls are no-ops. It reports whether anything
// was stripped.
func (s *Stripper) Strip(ctx context.Context, binary string) (bool, error) {
	has, err := HasSymbols(binary)
	if err != nil {
		return false, err
	}
	if !has {
		slog.Debug("binary has no symbols, skipping strip", "binary", binary)
		return false, nil
	}

	sidecar := SidecarPath(binary)
	steps := []runtime.Command{
		{Name: s.objcopy, Args: []string{"--only-keep-debug", binary, sidecar}},
		{Name: s.objcopy, Args: []string{"--strip-all", binary}},
	}
	for _, cmd := range steps {
		if err := runtime.Check(ctx, s.runner, cmd); err != nil {
			return false, fmt.Errorf("strip %s: %w", binary, err)
		}
	}
	slog.Info("detached debug symbols", "binary", binary, "symbols", sidecar)
	return true, nil
}
