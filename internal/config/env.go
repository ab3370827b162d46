// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/bootforge/bootforge/internal/runtime"
)

// Environment keys read back by the built-in actions. A task env override or
// the env_file may point them elsewhere.
const (
	EnvProfile      = "PROFILE"
	EnvObjcopy      = "OBJCOPY"
	EnvImagePath    = "IMAGE_PATH"
	EnvMountPoint   = "MOUNT_POINT"
	EnvFirmwareVars = "FIRMWARE_VARS"
)

// BaseEnv builds the environment table every task starts from. Precedence,
// lowest first: the process environment, values derived from the
// configuration, then the project's env_file.
func (c *Config) BaseEnv() (map[string]string, error) {
	env := runtime.EnvFromSlice(os.Environ())

	for k, v := range map[string]string{
		"PROJECT":            c.Project,
		"PROJECT_ROOT":       c.Root,
		"CARGO":              c.Tools.Cargo,
		EnvObjcopy:           c.Tools.Objcopy,
		"LOADER_TARGET":      c.Loader.Target,
		"KERNEL_TARGET":      c.Kernel.Target,
		EnvProfile:           ProfileDebug,
		"CARGO_PROFILE_FLAG": "",
		EnvImagePath:         c.Abs(c.Image.Path),
		EnvMountPoint:        c.Abs(c.Image.MountPoint),
		EnvFirmwareVars:      c.Abs(c.Firmware.VarsPath),
	} {
		env[k] = v
	}

	if c.EnvFile != "" {
		path := c.Abs(c.EnvFile)
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
		for k, v := range vars {
			env[k] = v
		}
	}
	return env, nil
}
