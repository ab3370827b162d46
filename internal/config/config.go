// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bootforge/bootforge/internal/cargo"
	"github.com/bootforge/bootforge/internal/issue"
	"github.com/bootforge/bootforge/internal/taskfile"
	"github.com/bootforge/bootforge/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "bootforge"
	// ConfigFileName is the project file looked up in the project directory.
	ConfigFileName = "bootforge.cue"
	// EnvPrefix prefixes environment overrides, e.g. BOOTFORGE_IMAGE_PATH.
	EnvPrefix = "BOOTFORGE"
)

//go:embed config_schema.cue
var configSchema []byte

// loadWithOptions builds the effective configuration for opts.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	root, err := projectRoot(opts)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := setDefaults(v, root); err != nil {
		return nil, err
	}

	path := opts.ConfigFilePath
	if path == "" {
		if local := filepath.Join(root, ConfigFileName); fileExists(local) {
			path = local
		}
	} else if !fileExists(path) {
		return nil, issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithIssue(issue.ProjectFileInvalidId).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'bootforge config show' to see the default configuration").
			Wrap(fmt.Errorf("config file not found: %s", path)).
			BuildError()
	}

	var tasks map[string]*taskfile.Task
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := loadCUEIntoViper(v, data, path); err != nil {
			return nil, invalidFile(path, err)
		}
		if tasks, err = taskfile.Parse(data, path); err != nil {
			return nil, invalidFile(path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Root = root
	cfg.Source = path
	cfg.Tasks = tasks

	if cfg.Project == "" {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(root).
			WithIssue(issue.ProjectFileInvalidId).
			WithSuggestion("Set 'project' in " + ConfigFileName).
			Wrap(errors.New("project name is empty")).
			BuildError()
	}
	return cfg, nil
}

// setDefaults seeds v with the built-in defaults and the values derived from
// the Cargo workspace at root.
func setDefaults(v *viper.Viper, root string) error {
	d := DefaultConfig()
	d.Project = filepath.Base(root)

	ws, err := cargo.Load(root)
	switch {
	case err == nil:
		if ws.Name != "" {
			d.Project = ws.Name
		}
		d.Members = ws.Members
	case errors.Is(err, cargo.ErrNoManifest):
	default:
		return invalidFile(filepath.Join(root, cargo.ManifestName), err)
	}

	v.SetDefault("project", d.Project)
	v.SetDefault("members", d.Members)
	for key, p := range map[string]TargetProfile{"loader": d.Loader, "kernel": d.Kernel} {
		v.SetDefault(key+".target", p.Target)
		v.SetDefault(key+".debug_path", p.DebugPath)
		v.SetDefault(key+".release_path", p.ReleasePath)
	}
	v.SetDefault("image.path", d.Image.Path)
	v.SetDefault("image.mount_point", d.Image.MountPoint)
	v.SetDefault("image.settle_delay", d.Image.SettleDelay)
	v.SetDefault("firmware.code", map[string]string{})
	v.SetDefault("firmware.vars_template", d.Firmware.VarsTemplate)
	v.SetDefault("firmware.vars_path", d.Firmware.VarsPath)
	v.SetDefault("emulator.binary", d.Emulator.Binary)
	v.SetDefault("emulator.gdb_port", d.Emulator.GDBPort)
	v.SetDefault("emulator.extra_devices", d.Emulator.ExtraDevices)
	v.SetDefault("tools.objcopy", d.Tools.Objcopy)
	v.SetDefault("tools.cargo", d.Tools.Cargo)
	v.SetDefault("tools.mkfs", d.Tools.Mkfs)
	v.SetDefault("tools.sudo", d.Tools.Sudo)
	v.SetDefault("watch.patterns", d.Watch.Patterns)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("env_file", d.EnvFile)
	return nil
}

// loadCUEIntoViper validates data against the #Config schema and merges its
// contents into Viper. Task definitions are left to the taskfile package.
func loadCUEIntoViper(v *viper.Viper, data []byte, path string) error {
	configMap, err := cueutil.DecodeMap(
		configSchema,
		data,
		"#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}
	delete(configMap, "tasks")

	// Merge into Viper (preserves defaults, allows env overrides)
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func projectRoot(opts LoadOptions) (string, error) {
	dir := opts.Dir
	if dir == "" {
		if opts.ConfigFilePath != "" {
			dir = filepath.Dir(opts.ConfigFilePath)
		} else {
			wd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("failed to get working directory: %w", err)
			}
			dir = wd
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	return abs, nil
}

func invalidFile(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithIssue(issue.ProjectFileInvalidId).
		WithSuggestion("Check that the file contains valid syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		Wrap(err).
		BuildError()
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
