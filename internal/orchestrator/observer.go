// SPDX-License-Identifier: MPL-2.0

package orchestrator

// Event kinds reported to an Observer.
const (
	TaskStarted  EventKind = "task-started"
	TaskFinished EventKind = "task-finished"
	CleanupFired EventKind = "cleanup-fired"
)

type (
	// EventKind names a lifecycle event.
	EventKind string

	// Event describes one lifecycle step of a run.
	Event struct {
		Kind EventKind
		// Task is the task whose body started or finished, or the cleanup task
		// that fired.
		Task string
		// Owner is set for CleanupFired: the task that registered the cleanup.
		Owner string
		// Err is the outcome for TaskFinished and CleanupFired.
		Err error
	}

	// Observer receives events. It is called from concurrent branches and must
	// be safe for concurrent use.
	Observer func(Event)
)
