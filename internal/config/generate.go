// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// GenerateCUE renders cfg in the project file format. Task definitions are
// not included.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// bootforge project configuration\n\n")
	fmt.Fprintf(&sb, "project: %q\n", cfg.Project)
	if len(cfg.Members) > 0 {
		sb.WriteString("members: [")
		for i, m := range cfg.Members {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q", m)
		}
		sb.WriteString("]\n")
	}

	for _, t := range []struct {
		key string
		p   TargetProfile
	}{{"loader", cfg.Loader}, {"kernel", cfg.Kernel}} {
		fmt.Fprintf(&sb, "\n%s: {\n", t.key)
		fmt.Fprintf(&sb, "\ttarget:       %q\n", t.p.Target)
		fmt.Fprintf(&sb, "\tdebug_path:   %q\n", t.p.DebugPath)
		fmt.Fprintf(&sb, "\trelease_path: %q\n", t.p.ReleasePath)
		sb.WriteString("}\n")
	}

	sb.WriteString("\nimage: {\n")
	fmt.Fprintf(&sb, "\tpath:         %q\n", cfg.Image.Path)
	fmt.Fprintf(&sb, "\tmount_point:  %q\n", cfg.Image.MountPoint)
	fmt.Fprintf(&sb, "\tsettle_delay: %q\n", cfg.Image.SettleDelay.String())
	sb.WriteString("}\n")

	sb.WriteString("\nfirmware: {\n")
	if len(cfg.Firmware.Code) > 0 {
		sb.WriteString("\tcode: {\n")
		for _, goos := range slices.Sorted(maps.Keys(cfg.Firmware.Code)) {
			fmt.Fprintf(&sb, "\t\t%s: %q\n", goos, cfg.Firmware.Code[goos])
		}
		sb.WriteString("\t}\n")
	}
	if cfg.Firmware.VarsTemplate != "" {
		fmt.Fprintf(&sb, "\tvars_template: %q\n", cfg.Firmware.VarsTemplate)
	}
	fmt.Fprintf(&sb, "\tvars_path: %q\n", cfg.Firmware.VarsPath)
	sb.WriteString("}\n")

	sb.WriteString("\nemulator: {\n")
	fmt.Fprintf(&sb, "\tbinary:   %q\n", cfg.Emulator.Binary)
	fmt.Fprintf(&sb, "\tgdb_port: %d\n", cfg.Emulator.GDBPort)
	writeList(&sb, "extra_devices", cfg.Emulator.ExtraDevices)
	sb.WriteString("}\n")

	sb.WriteString("\ntools: {\n")
	fmt.Fprintf(&sb, "\tobjcopy: %q\n", cfg.Tools.Objcopy)
	fmt.Fprintf(&sb, "\tcargo:   %q\n", cfg.Tools.Cargo)
	fmt.Fprintf(&sb, "\tmkfs:    %q\n", cfg.Tools.Mkfs)
	fmt.Fprintf(&sb, "\tsudo:    %q\n", cfg.Tools.Sudo)
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	writeList(&sb, "patterns", cfg.Watch.Patterns)
	writeList(&sb, "ignore", cfg.Watch.Ignore)
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	sb.WriteString("}\n")

	if cfg.EnvFile != "" {
		fmt.Fprintf(&sb, "\nenv_file: %q\n", cfg.EnvFile)
	}
	return sb.String()
}

// writeList renders a non-empty string list field at struct depth one.
func writeList(sb *strings.Builder, key string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\t%s: [\n", key)
	for _, item := range items {
		fmt.Fprintf(sb, "\t\t%q,\n", item)
	}
	sb.WriteString("\t]\n")
}
