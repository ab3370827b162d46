// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific config file when set.
	ConfigFilePath string
	// Dir is the project directory. It defaults to the directory of
	// ConfigFilePath, or the working directory.
	Dir string
}

// Provider loads the project configuration. Tests substitute a static one.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type projectProvider struct{}

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &projectProvider{}
}

// Load resolves the project directory and reads bootforge.cue, Cargo.toml
// and BOOTFORGE_* overrides.
func (p *projectProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return loadWithOptions(ctx, opts)
}
