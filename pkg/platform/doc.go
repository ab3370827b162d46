// SPDX-License-Identifier: MPL-2.0

// Package platform resolves the host-specific behavior of a run once, at
// startup: which firmware code image the emulator loads, how a disk image or a
// removable drive is mounted and unmounted, and whether hardware-assisted
// virtualization can be requested. Call sites consult the resolved Host rather
// than testing runtime.GOOS themselves.
package platform
