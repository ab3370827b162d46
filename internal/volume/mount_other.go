// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package volume

import "errors"

// IsMounted is not supported on this platform.
func IsMounted(string) (bool, error) {
	return false, errors.ErrUnsupported
}
