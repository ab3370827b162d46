// SPDX-License-Identifier: MPL-2.0

// Package runtime runs the external world on behalf of tasks: host processes
// (compilers, mkfs, mount helpers, objcopy, the emulator) through a Runner, and
// script task bodies through the embedded mvdan/sh interpreter. It also owns the
// cross-process run lock that keeps two runs off the same mount point.
package runtime
