// SPDX-License-Identifier: MPL-2.0

// Package volume attaches the FAT32 boot volume a run deploys into, either a
// raw image file or an existing removable drive, and releases it afterwards.
//
// Detach is idempotent: it consults the live mount table (by comparing device
// IDs of the mount point and its parent) and does nothing when the mount point
// is not an active mount. It is safe to call after an attach that never
// happened or failed halfway.
package volume
