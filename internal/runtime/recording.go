// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"slices"
	"sync"
)

// RecordingRunner is a Runner test double. It records every command and answers
// with Handler, or exit code 0 when Handler is nil.
type RecordingRunner struct {
	// Handler decides the outcome of each command. It may also simulate side
	// effects, such as writing the file an external tool would produce.
	Handler func(cmd Command) (ExitCode, error)

	mu    sync.Mutex
	calls []Command
}

// Run records cmd and delegates to Handler.
func (r *RecordingRunner) Run(_ context.Context, cmd Command) (ExitCode, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Handler == nil {
		return 0, nil
	}
	return r.Handler(cmd)
}

// Calls returns a copy of the recorded commands in invocation order.
func (r *RecordingRunner) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Names returns the program names of the recorded commands.
func (r *RecordingRunner) Names() []string {
	calls := r.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}
