// SPDX-License-Identifier: MPL-2.0

package taskfile

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"github.com/bootforge/bootforge/internal/dag"
	"github.com/bootforge/bootforge/pkg/cueutil"
)

var (
	//go:embed schema.cue
	tableSchema []byte

	//go:embed builtin.cue
	builtinTable []byte
)

type (
	// Table is an immutable set of tasks keyed by name.
	Table struct {
		tasks map[string]*Task
		names []string
	}

	// tableFile is the decoded shape of a task table source.
	tableFile struct {
		Tasks map[string]*Task `json:"tasks"`
	}
)

// Builtin returns the embedded default task table.
func Builtin() (*Table, error) {
	tasks, err := Parse(builtinTable, "builtin.cue")
	if err != nil {
		return nil, fmt.Errorf("internal error: built-in task table: %w", err)
	}
	return New(tasks), nil
}

// Parse decodes the `tasks` field of a CUE source against the task schema.
// Other top-level fields are ignored, so a whole project file can be passed.
func Parse(data []byte, filename string) (map[string]*Task, error) {
	result, err := cueutil.ParseAndDecode[tableFile](
		tableSchema,
		data,
		"#Table",
		cueutil.WithFilename(filename),
	)
	if err != nil {
		return nil, err
	}
	tasks := result.Value.Tasks
	for name, t := range tasks {
		t.Name = name
	}
	return tasks, nil
}

// New builds a table from tasks. Each task's Name is set from its key.
func New(tasks map[string]*Task) *Table {
	t := &Table{tasks: make(map[string]*Task, len(tasks))}
	for name, task := range tasks {
		cp := *task
		cp.Name = name
		t.tasks[name] = &cp
	}
	t.names = slices.Sorted(maps.Keys(t.tasks))
	return t
}

// Merge returns a new table where overrides replace same-named tasks of t and
// add the rest.
func (t *Table) Merge(overrides map[string]*Task) *Table {
	merged := maps.Clone(t.tasks)
	maps.Copy(merged, overrides)
	return New(merged)
}

// Get returns the named task.
func (t *Table) Get(name string) (*Task, bool) {
	task, ok := t.tasks[name]
	return task, ok
}

// Names returns every task name in sorted order.
func (t *Table) Names() []string {
	return slices.Clone(t.names)
}

// Public returns the tasks that can be invoked directly, sorted by name.
func (t *Table) Public() []*Task {
	var public []*Task
	for _, name := range t.names {
		if task := t.tasks[name]; !task.Private {
			public = append(public, task)
		}
	}
	return public
}

// Graph builds the dependency graph: an edge from A to B means A finishes
// before B does. Delegation targets count as edges of the delegating task.
func (t *Table) Graph() *dag.Graph {
	return t.graph(false)
}

// graph optionally adds an edge from each cleanup task to its owner, since a
// cleanup fires before its owner completes.
func (t *Table) graph(withCleanup bool) *dag.Graph {
	g := dag.New()
	for _, name := range t.names {
		g.AddNode(name)
	}
	for _, name := range t.names {
		task := t.tasks[name]
		for _, edge := range task.Edges() {
			g.AddEdge(edge, name)
		}
		if withCleanup && task.Cleanup != "" && task.Cleanup != name {
			if _, ok := t.tasks[task.Cleanup]; ok {
				g.AddEdge(task.Cleanup, name)
			}
		}
	}
	return g
}

// Plan returns the closure of entry in a valid execution order. Cleanup
// tasks are not part of the plan.
func (t *Table) Plan(entry string) ([]string, error) {
	closure, err := t.Graph().Closure(entry)
	if err != nil {
		return nil, err
	}
	return closure.TopologicalSort()
}
