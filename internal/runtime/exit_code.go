// SPDX-License-Identifier: MPL-2.0

package runtime

import "strconv"

// ExitCode is a process exit status. Zero means success.
type ExitCode int

// IsSuccess reports whether c means success.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// Worst returns the higher of two exit codes. Workspace-wide tasks report the
// worst status of their members.
func (c ExitCode) Worst(other ExitCode) ExitCode {
	return max(c, other)
}

// Process returns the status to hand to os.Exit. Only the low eight bits
// survive on POSIX hosts; a failure whose low bits are zero becomes 1 so it
// is not mistaken for success.
func (c ExitCode) Process() int {
	if c == 0 {
		return 0
	}
	if low := int(c) & 0xff; low != 0 {
		return low
	}
	return 1
}

// String returns the decimal representation.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
