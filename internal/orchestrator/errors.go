// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/bootforge/bootforge/internal/runtime"
)

type (
	// UnknownTaskError is returned when the entry point does not name a public
	// task. Nothing runs.
	UnknownTaskError struct {
		Name string
		// Private is set when the task exists but cannot be invoked directly.
		Private bool
	}

	// TaskFailedError reports a script body that exited non-zero.
	TaskFailedError struct {
		Task     string
		ExitCode runtime.ExitCode
	}

	// ForkError wraps the failure of a forked delegation.
	ForkError struct {
		Task string
		Err  error
	}

	// CleanupError reports a cleanup task that failed.
	CleanupError struct {
		// Owner is the task that registered the cleanup.
		Owner   string
		Cleanup string
		Err     error
	}
)

// Error implements the error interface.
func (e *UnknownTaskError) Error() string {
	if e.Private {
		return fmt.Sprintf("task %q is internal and cannot be invoked directly", e.Name)
	}
	return fmt.Sprintf("unknown task %q", e.Name)
}

// Error implements the error interface.
func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed with exit code %d", e.Task, e.ExitCode)
}

// Error implements the error interface.
func (e *ForkError) Error() string {
	return fmt.Sprintf("forked subtree of %s failed: %v", e.Task, e.Err)
}

// Unwrap returns the forked subtree's error.
func (e *ForkError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s of %s failed: %v", e.Cleanup, e.Owner, e.Err)
}

// Unwrap returns the cleanup task's error.
func (e *CleanupError) Unwrap() error { return e.Err }

// ExitCodeOf maps a run error to a process exit status: the exit code of the
// failing script or tool when there is one, 0 for nil, and 1 otherwise.
func ExitCodeOf(err error) runtime.ExitCode {
	if err == nil {
		return 0
	}
	var taskErr *TaskFailedError
	if errors.As(err, &taskErr) && taskErr.ExitCode != 0 {
		return taskErr.ExitCode
	}
	var toolErr *runtime.ToolError
	if errors.As(err, &toolErr) && toolErr.ExitCode != 0 {
		return toolErr.ExitCode
	}
	return 1
}
