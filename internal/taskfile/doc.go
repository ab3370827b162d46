// SPDX-License-Identifier: MPL-2.0

// Package taskfile defines the static task table: the named tasks, their
// dependencies, bodies and cleanup obligations. The built-in table is embedded
// as CUE and validated against an embedded schema; a project file may add
// tasks or replace built-in ones by name. A Table is immutable once built.
package taskfile
