// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package emulator

import (
	"context"
	"errors"

	"github.com/bootforge/bootforge/internal/runtime"
)

func runInteractive(context.Context, runtime.Command) (runtime.ExitCode, error) {
	return 1, errors.ErrUnsupported
}
