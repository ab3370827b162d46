// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/bootforge/bootforge/internal/issue"
	"github.com/bootforge/bootforge/internal/orchestrator"
	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/internal/taskfile"
)

// ExitConfigError is the exit status of configuration errors.
const ExitConfigError runtime.ExitCode = 2

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code runtime.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitErrorFor classifies a run error. Configuration problems exit with
// ExitConfigError; failing scripts and tools pass their own status through.
func exitErrorFor(err error) *ExitError {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if isConfigError(err) {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	return &ExitError{Code: orchestrator.ExitCodeOf(err), Err: err}
}

func isConfigError(err error) bool {
	var (
		ae      *issue.ActionableError
		unknown *orchestrator.UnknownTaskError
	)
	if errors.As(err, &ae) || errors.As(err, &unknown) {
		return true
	}
	_, ok := taskfile.AsValidationErrors(err)
	return ok
}
