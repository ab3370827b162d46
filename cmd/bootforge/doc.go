// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for bootforge.
//
// Every public task of the task table becomes a subcommand. The remaining
// commands inspect the table and the effective configuration without running
// anything.
package cmd
