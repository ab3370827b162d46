// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
)

// ErrRunLocked is returned when another process holds the run lock.
var ErrRunLocked = errors.New("another run holds the lock")

// ToolError reports an external tool that exited with a non-zero status.
type ToolError struct {
	// Command is the rendered command line.
	Command string
	// ExitCode is the tool's exit status.
	ExitCode ExitCode
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}

// Check runs cmd and converts a non-zero exit status into a *ToolError.
func Check(ctx context.Context, r Runner, cmd Command) error {
	code, err := r.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !code.IsSuccess() {
		return &ToolError{Command: cmd.String(), ExitCode: code}
	}
	return nil
}
