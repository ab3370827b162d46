// SPDX-License-Identifier: MPL-2.0

package config

import (
	"path/filepath"
	"time"

	"github.com/bootforge/bootforge/internal/taskfile"
)

const (
	// ProfileDebug selects unoptimized artifacts.
	ProfileDebug = "debug"
	// ProfileRelease selects optimized artifacts.
	ProfileRelease = "release"
)

type (
	// TargetProfile locates one compiled component per build profile.
	TargetProfile struct {
		Target      string `json:"target" mapstructure:"target"`
		DebugPath   string `json:"debug_path" mapstructure:"debug_path"`
		ReleasePath string `json:"release_path" mapstructure:"release_path"`
	}

	// ImageConfig locates the disk image and where it is mounted.
	ImageConfig struct {
		Path        string        `json:"path" mapstructure:"path"`
		MountPoint  string        `json:"mount_point" mapstructure:"mount_point"`
		SettleDelay time.Duration `json:"settle_delay" mapstructure:"settle_delay"`
	}

	// FirmwareConfig locates the firmware images.
	FirmwareConfig struct {
		// Code overrides the host default per OS.
		Code map[string]string `json:"code" mapstructure:"code"`
		// VarsTemplate overrides the host default template.
		VarsTemplate string `json:"vars_template" mapstructure:"vars_template"`
		// VarsPath is the mutable store, persisted between sessions.
		VarsPath string `json:"vars_path" mapstructure:"vars_path"`
	}

	// EmulatorConfig configures the emulator session.
	EmulatorConfig struct {
		Binary       string   `json:"binary" mapstructure:"binary"`
		GDBPort      int      `json:"gdb_port" mapstructure:"gdb_port"`
		ExtraDevices []string `json:"extra_devices" mapstructure:"extra_devices"`
	}

	// ToolsConfig names the host tools invoked by actions.
	ToolsConfig struct {
		Objcopy string `json:"objcopy" mapstructure:"objcopy"`
		Cargo   string `json:"cargo" mapstructure:"cargo"`
		Mkfs    string `json:"mkfs" mapstructure:"mkfs"`
		Sudo    string `json:"sudo" mapstructure:"sudo"`
	}

	// WatchConfig selects the sources watched by --watch. Paths are globs
	// relative to the project root.
	WatchConfig struct {
		Patterns []string      `json:"patterns" mapstructure:"patterns"`
		Ignore   []string      `json:"ignore" mapstructure:"ignore"`
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	}

	// Config is the effective project configuration.
	Config struct {
		Project  string         `json:"project" mapstructure:"project"`
		Members  []string       `json:"members" mapstructure:"members"`
		Loader   TargetProfile  `json:"loader" mapstructure:"loader"`
		Kernel   TargetProfile  `json:"kernel" mapstructure:"kernel"`
		Image    ImageConfig    `json:"image" mapstructure:"image"`
		Firmware FirmwareConfig `json:"firmware" mapstructure:"firmware"`
		Emulator EmulatorConfig `json:"emulator" mapstructure:"emulator"`
		Tools    ToolsConfig    `json:"tools" mapstructure:"tools"`
		Watch    WatchConfig    `json:"watch" mapstructure:"watch"`
		EnvFile  string         `json:"env_file" mapstructure:"env_file"`

		// Root is the project directory relative paths resolve against.
		Root string `json:"-" mapstructure:"-"`
		// Source is the configuration file that was loaded, if any.
		Source string `json:"-" mapstructure:"-"`
		// Tasks are project task definitions merged over the built-in table.
		Tasks map[string]*taskfile.Task `json:"-" mapstructure:"-"`
	}
)

// Artifact returns the artifact path for a build profile. Anything other
// than ProfileRelease selects the debug path.
func (p TargetProfile) Artifact(profile string) string {
	if profile == ProfileRelease {
		return p.ReleasePath
	}
	return p.DebugPath
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Loader: TargetProfile{
			Target:      "x86_64-unknown-uefi",
			DebugPath:   "target/x86_64-unknown-uefi/debug/loader.efi",
			ReleasePath: "target/x86_64-unknown-uefi/release/loader.efi",
		},
		Kernel: TargetProfile{
			Target:      "x86_64-unknown-none",
			DebugPath:   "target/x86_64-unknown-none/debug/kernel",
			ReleasePath: "target/x86_64-unknown-none/release/kernel",
		},
		Image: ImageConfig{
			Path:        "target/disk.img",
			MountPoint:  "target/mnt",
			SettleDelay: 500 * time.Millisecond,
		},
		Firmware: FirmwareConfig{
			VarsPath: "target/OVMF_VARS.fd",
		},
		Emulator: EmulatorConfig{
			Binary:  "qemu-system-x86_64",
			GDBPort: 1234,
		},
		Tools: ToolsConfig{
			Objcopy: "objcopy",
			Cargo:   "cargo",
			Mkfs:    "mkfs.fat",
			Sudo:    "sudo",
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Abs resolves path against the project root. Absolute paths are returned
// unchanged.
func (c *Config) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, filepath.FromSlash(path))
}
