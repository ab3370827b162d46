// SPDX-License-Identifier: MPL-2.0

package taskfile

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ValidationError reports one problem with a task definition.
	ValidationError struct {
		Task    string
		Message string
	}

	// ValidationErrors collects every problem found in a table.
	ValidationErrors []*ValidationError
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %q: %s", e.Task, e.Message)
}

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks references, body kinds and cycles. A cleanup task that
// depends on the task it cleans up counts as a cycle. It returns nil or
// ValidationErrors.
func (t *Table) Validate() error {
	var errs ValidationErrors
	add := func(task, format string, args ...any) {
		errs = append(errs, &ValidationError{Task: task, Message: fmt.Sprintf(format, args...)})
	}

	for _, name := range t.names {
		task := t.tasks[name]
		for _, dep := range task.Deps {
			if _, ok := t.tasks[dep]; !ok {
				add(name, "unknown dependency %q", dep)
			}
		}
		if task.Run != nil {
			for _, child := range task.Run.Tasks {
				if _, ok := t.tasks[child]; !ok {
					add(name, "unknown delegated task %q", child)
				}
			}
		}
		if task.Cleanup != "" {
			if task.Cleanup == name {
				add(name, "task cannot be its own cleanup")
			} else if _, ok := t.tasks[task.Cleanup]; !ok {
				add(name, "unknown cleanup task %q", task.Cleanup)
			}
		}
		if kinds := task.Kinds(); len(kinds) > 1 {
			add(name, "declares more than one body: %v", kinds)
		}
		if task.Workspace && task.Kind() != BodyScript {
			add(name, "workspace scope requires a script body")
		}
	}

	if _, err := t.graph(true).TopologicalSort(); err != nil {
		errs = append(errs, &ValidationError{Task: "*", Message: err.Error()})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AsValidationErrors extracts ValidationErrors from err.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var errs ValidationErrors
	ok := errors.As(err, &errs)
	return errs, ok
}
