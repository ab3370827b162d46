// SPDX-License-Identifier: MPL-2.0

// Package orchestrator runs entry points of the task table.
//
// A run resolves the entry point, then executes each task's dependencies
// before its body, at most once per run even when a task is reachable along
// several paths or from concurrent branches. A task declaring a cleanup task
// registers that obligation before its dependencies start; the cleanup fires
// once the task's whole subtree has finished, whether it succeeded or failed,
// and is not interrupted by cancellation of the run's context.
//
// Delegated tasks run inline (sharing the caller's run state, failures
// propagate as-is) or forked (in an isolated scope whose failure is wrapped in
// a ForkError), sequentially or in parallel.
package orchestrator
