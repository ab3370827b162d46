// SPDX-License-Identifier: MPL-2.0

// Package config loads the project configuration using Viper with CUE as the
// file format.
//
// Defaults are derived from the Cargo workspace when one is present. A
// bootforge.cue file in the project directory (or the file named with
// --config) is validated against the embedded schema (config_schema.cue) and
// merged over the defaults, and BOOTFORGE_* environment variables override
// both. Project task definitions in the same file are decoded separately by
// the taskfile package.
package config
