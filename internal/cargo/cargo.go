// SPDX-License-Identifier: MPL-2.0

// Package cargo reads the parts of a Cargo workspace manifest that bootforge
// derives defaults from: the member crates and an optional project name under
// [workspace.metadata.bootforge].
package cargo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the workspace manifest file name.
const ManifestName = "Cargo.toml"

// ErrNoManifest is returned when the directory holds no Cargo.toml.
var ErrNoManifest = errors.New("no " + ManifestName + " found")

type (
	// Workspace is the subset of a workspace manifest bootforge uses.
	Workspace struct {
		// Root is the directory holding the manifest.
		Root string
		// Name is [workspace.metadata.bootforge] name, or the package name.
		Name string
		// Members are member directories relative to Root, globs expanded.
		Members []string
	}

	manifest struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
		Workspace struct {
			Members  []string `toml:"members"`
			Exclude  []string `toml:"exclude"`
			Metadata struct {
				Bootforge struct {
					Name string `toml:"name"`
				} `toml:"bootforge"`
			} `toml:"metadata"`
		} `toml:"workspace"`
	}
)

// Load reads dir/Cargo.toml.
func Load(dir string) (*Workspace, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoManifest)
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(dir, data)
}

// Parse decodes manifest data for the workspace rooted at dir.
func Parse(dir string, data []byte) (*Workspace, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("%s:%d:%d: %w", ManifestName, row, col, err)
		}
		return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
	}

	ws := &Workspace{Root: dir, Name: m.Workspace.Metadata.Bootforge.Name}
	if ws.Name == "" {
		ws.Name = m.Package.Name
	}

	for _, pattern := range m.Workspace.Members {
		if !strings.ContainsAny(pattern, "*?[") {
			ws.Members = append(ws.Members, filepath.ToSlash(pattern))
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, filepath.FromSlash(pattern)))
		if err != nil {
			return nil, fmt.Errorf("workspace member pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			rel, err := filepath.Rel(dir, match)
			if err != nil {
				return nil, err
			}
			ws.Members = append(ws.Members, filepath.ToSlash(rel))
		}
	}
	ws.Members = slices.DeleteFunc(ws.Members, func(member string) bool {
		return slices.Contains(m.Workspace.Exclude, member)
	})
	slices.Sort(ws.Members)
	ws.Members = slices.Compact(ws.Members)
	return ws, nil
}
