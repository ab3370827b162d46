// SPDX-License-Identifier: MPL-2.0

package taskfile

type (
	// Task is one named node of the task table.
	Task struct {
		// Name is the table key; it is not part of the decoded body.
		Name        string            `json:"-" yaml:"name"`
		Description string            `json:"description,omitempty" yaml:"description,omitempty"`
		Deps        []string          `json:"deps,omitempty" yaml:"deps,omitempty"`
		Script      []string          `json:"script,omitempty" yaml:"script,omitempty"`
		Run         *Delegation       `json:"run,omitempty" yaml:"run,omitempty"`
		Action      string            `json:"action,omitempty" yaml:"action,omitempty"`
		Cleanup     string            `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
		Workspace   bool              `json:"workspace,omitempty" yaml:"workspace,omitempty"`
		Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
		Private     bool              `json:"private,omitempty" yaml:"private,omitempty"`
	}

	// Delegation hands a task's body to other tasks. Inline delegation shares
	// the caller's run state; Fork isolates the children so their failure is
	// reported rather than corrupting the caller. Parallel starts the children
	// concurrently and waits for all of them.
	Delegation struct {
		Tasks    []string `json:"tasks" yaml:"tasks"`
		Fork     bool     `json:"fork,omitempty" yaml:"fork,omitempty"`
		Parallel bool     `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	}

	// BodyKind classifies what a task does when it runs.
	BodyKind string
)

const (
	// BodyNone marks a pure aggregate of dependencies.
	BodyNone BodyKind = "none"
	// BodyScript runs shell lines.
	BodyScript BodyKind = "script"
	// BodyRun delegates to other tasks.
	BodyRun BodyKind = "run"
	// BodyAction calls a built-in component.
	BodyAction BodyKind = "action"
)

// Kinds lists every body the task declares. A valid task declares at most one.
func (t *Task) Kinds() []BodyKind {
	var kinds []BodyKind
	if len(t.Script) > 0 {
		kinds = append(kinds, BodyScript)
	}
	if t.Run != nil {
		kinds = append(kinds, BodyRun)
	}
	if t.Action != "" {
		kinds = append(kinds, BodyAction)
	}
	return kinds
}

// Kind returns the task's body kind.
func (t *Task) Kind() BodyKind {
	kinds := t.Kinds()
	if len(kinds) == 0 {
		return BodyNone
	}
	return kinds[0]
}

// Edges returns the tasks that must finish before t's body completes: its
// dependencies followed by its delegation targets.
func (t *Task) Edges() []string {
	edges := append([]string(nil), t.Deps...)
	if t.Run != nil {
		edges = append(edges, t.Run.Tasks...)
	}
	return edges
}
