// SPDX-License-Identifier: MPL-2.0

// Package actions implements the built-in task bodies named by the task
// table (symbols.strip, volume.attach-image, image.assemble, ...) on top of
// the component packages.
//
// One Actions value serves one run. It holds the attached volume between the
// attach, assemble and detach tasks, and holds the run lock on the mount
// point from attach until detach.
package actions
