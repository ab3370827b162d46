// SPDX-License-Identifier: MPL-2.0

package taskfile

import (
	"slices"
	"strings"
	"testing"
)

func mustBuiltin(t *testing.T) *Table {
	t.Helper()
	table, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	return table
}

func TestBuiltin_Valid(t *testing.T) {
	t.Parallel()

	table := mustBuiltin(t)
	if err := table.Validate(); err != nil {
		t.Fatalf("built-in table invalid: %v", err)
	}
}

func TestBuiltin_EntryPoints(t *testing.T) {
	t.Parallel()

	table := mustBuiltin(t)
	var public []string
	for _, task := range table.Public() {
		public = append(public, task.Name)
	}
	want := []string{
		"build", "check", "clean-firmware-vars", "lint", "make-image", "make-image-release",
		"release", "release-run", "release-usb", "run", "usb",
	}
	if !slices.Equal(public, want) {
		t.Errorf("Public() = %v, want %v", public, want)
	}
}

func TestBuiltin_Shapes(t *testing.T) {
	t.Parallel()

	table := mustBuiltin(t)
	tests := []struct {
		name    string
		kind    BodyKind
		cleanup string
		deps    []string
	}{
		{"compile", BodyRun, "", nil},
		{"build", BodyAction, "", []string{"compile"}},
		{"make-image", BodyRun, "detach", []string{"build"}},
		{"usb", BodyRun, "detach", []string{"require-drive", "build"}},
		{"run", BodyRun, "", []string{"make-image", "fwvars"}},
		{"check", BodyScript, "", nil},
	}
	for _, tt := range tests {
		task, ok := table.Get(tt.name)
		if !ok {
			t.Fatalf("task %q missing", tt.name)
		}
		if task.Kind() != tt.kind {
			t.Errorf("%s: kind = %s, want %s", tt.name, task.Kind(), tt.kind)
		}
		if task.Cleanup != tt.cleanup {
			t.Errorf("%s: cleanup = %q, want %q", tt.name, task.Cleanup, tt.cleanup)
		}
		if !slices.Equal(task.Deps, tt.deps) {
			t.Errorf("%s: deps = %v, want %v", tt.name, task.Deps, tt.deps)
		}
	}

	compile, _ := table.Get("compile")
	if !compile.Run.Fork || !compile.Run.Parallel {
		t.Errorf("compile delegation = %+v, want fork and parallel", compile.Run)
	}
	release, _ := table.Get("release-run")
	if release.Env["PROFILE"] != "release" || release.Env["CARGO_PROFILE_FLAG"] != "--release" {
		t.Errorf("release-run env = %v", release.Env)
	}
	check, _ := table.Get("check")
	if !check.Workspace {
		t.Error("check should run per workspace member")
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	table := mustBuiltin(t)
	plan, err := table.Plan("make-image")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	pos := make(map[string]int, len(plan))
	for i, name := range plan {
		pos[name] = i
	}
	before := [][2]string{
		{"build-loader", "compile"},
		{"build-kernel", "compile"},
		{"compile", "build"},
		{"build", "make-image"},
		{"attach-image", "make-image"},
		{"assemble", "make-image"},
	}
	for _, pair := range before {
		if pos[pair[0]] >= pos[pair[1]] {
			t.Errorf("%s should precede %s in %v", pair[0], pair[1], plan)
		}
	}
	if slices.Contains(plan, "launch") {
		t.Errorf("plan for make-image includes launch: %v", plan)
	}
}

func TestParse_ProjectOverrides(t *testing.T) {
	t.Parallel()

	src := `
project: "nebula"
tasks: {
	check: {
		workspace: true
		script: ["${CARGO} check --all-targets"]
	}
	docs: {
		description: "Build API docs"
		deps: ["build"]
		script: ["${CARGO} doc --no-deps"]
	}
}
`
	overrides, err := Parse([]byte(src), "bootforge.cue")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	merged := mustBuiltin(t).Merge(overrides)
	if err := merged.Validate(); err != nil {
		t.Fatalf("merged table invalid: %v", err)
	}
	check, _ := merged.Get("check")
	if got := check.Script[0]; got != "${CARGO} check --all-targets" {
		t.Errorf("check script = %q, want override", got)
	}
	docs, ok := merged.Get("docs")
	if !ok || docs.Name != "docs" {
		t.Fatalf("docs task = %+v", docs)
	}
}

func TestParse_SchemaRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"bad name", `tasks: {"Build": {script: ["true"]}}`},
		{"unknown field", `tasks: {x: {scripts: ["true"]}}`},
		{"empty delegation", `tasks: {x: {run: tasks: []}}`},
		{"bad action", `tasks: {x: {action: "strip"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tt.src), "bootforge.cue"); err == nil {
				t.Errorf("Parse(%s) returned nil error", tt.src)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		tasks map[string]*Task
		want  string
	}{
		{
			name:  "unknown dependency",
			tasks: map[string]*Task{"a": {Deps: []string{"missing"}}},
			want:  `unknown dependency "missing"`,
		},
		{
			name:  "unknown cleanup",
			tasks: map[string]*Task{"a": {Cleanup: "gone"}},
			want:  `unknown cleanup task "gone"`,
		},
		{
			name:  "self cleanup",
			tasks: map[string]*Task{"a": {Cleanup: "a"}},
			want:  "its own cleanup",
		},
		{
			name:  "unknown delegation",
			tasks: map[string]*Task{"a": {Run: &Delegation{Tasks: []string{"b"}}}},
			want:  `unknown delegated task "b"`,
		},
		{
			name:  "two bodies",
			tasks: map[string]*Task{"a": {Script: []string{"true"}, Action: "fwvars.ensure"}},
			want:  "more than one body",
		},
		{
			name:  "workspace without script",
			tasks: map[string]*Task{"a": {Workspace: true, Action: "fwvars.ensure"}},
			want:  "workspace scope requires a script body",
		},
		{
			name: "cleanup depends on owner",
			tasks: map[string]*Task{
				"mount":   {Cleanup: "unmount"},
				"unmount": {Deps: []string{"mount"}},
			},
			want: "dependency cycle detected",
		},
		{
			name: "cycle through delegation",
			tasks: map[string]*Task{
				"a": {Deps: []string{"b"}},
				"b": {Run: &Delegation{Tasks: []string{"a"}}},
			},
			want: "dependency cycle detected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(tt.tasks).Validate()
			if err == nil {
				t.Fatal("Validate() returned nil")
			}
			if _, ok := AsValidationErrors(err); !ok {
				t.Errorf("Validate() error type = %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.want)
			}
		})
	}
}
