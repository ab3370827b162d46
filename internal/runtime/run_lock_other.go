// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package runtime

// RunLock is the stub used where flock does not exist. Image attach is not
// supported on these hosts, so there is no mount point to protect.
type RunLock struct {
	path string
}

// AcquireRunLock always succeeds on hosts without flock.
func AcquireRunLock(path, _ string) (*RunLock, error) {
	return &RunLock{path: path}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release is a no-op.
func (l *RunLock) Release() {}
