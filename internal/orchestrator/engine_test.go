// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bootforge/bootforge/internal/taskfile"
)

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// trace renders events as "kind:task" strings.
func (r *recorder) trace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = string(ev.Kind) + ":" + ev.Task
	}
	return out
}

func (r *recorder) index(entry string) int {
	return slices.Index(r.trace(), entry)
}

func newEngine(t *testing.T, tasks map[string]*taskfile.Task, actions map[string]ActionFunc, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithObserver(rec.observe)}, opts...)
	e, err := New(taskfile.New(tasks), actions, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e, rec
}

func noop(context.Context, Call) error { return nil }

func TestRun_DependenciesRunOnceBeforeBody(t *testing.T) {
	t.Parallel()

	var shared atomic.Int32
	tasks := map[string]*taskfile.Task{
		"top":    {Deps: []string{"left", "right"}, Action: "t.noop"},
		"left":   {Deps: []string{"shared"}, Action: "t.noop"},
		"right":  {Deps: []string{"shared"}, Action: "t.noop"},
		"shared": {Action: "t.count"},
	}
	actions := map[string]ActionFunc{
		"t.noop": noop,
		"t.count": func(context.Context, Call) error {
			shared.Add(1)
			return nil
		},
	}
	e, _ := newEngine(t, tasks, actions)

	res, err := e.Run(context.Background(), "top", Invocation{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := shared.Load(); n != 1 {
		t.Errorf("shared ran %d times, want 1", n)
	}
	want := []string{"shared", "left", "right", "top"}
	if !slices.Equal(res.Tasks, want) {
		t.Errorf("Tasks = %v, want %v", res.Tasks, want)
	}
}

func TestRun_UnknownEntryRunsNothing(t *testing.T) {
	t.Parallel()

	var ran atomic.Bool
	tasks := map[string]*taskfile.Task{
		"visible": {Action: "t.mark"},
		"hidden":  {Action: "t.mark", Private: true},
	}
	actions := map[string]ActionFunc{"t.mark": func(context.Context, Call) error {
		ran.Store(true)
		return nil
	}}
	e, _ := newEngine(t, tasks, actions)

	tests := []struct {
		entry   string
		private bool
	}{
		{"missing", false},
		{"hidden", true},
	}
	for _, tt := range tests {
		_, err := e.Run(context.Background(), tt.entry, Invocation{})
		var unknown *UnknownTaskError
		if !errors.As(err, &unknown) {
			t.Fatalf("Run(%q) error = %v, want UnknownTaskError", tt.entry, err)
		}
		if unknown.Private != tt.private {
			t.Errorf("Run(%q) Private = %v, want %v", tt.entry, unknown.Private, tt.private)
		}
	}
	if ran.Load() {
		t.Error("a task ran for an unknown entry point")
	}
}

func TestRun_CleanupFiresOnFailure(t *testing.T) {
	t.Parallel()

	var released atomic.Int32
	tasks := map[string]*taskfile.Task{
		"deploy":  {Deps: []string{"build"}, Run: &taskfile.Delegation{Tasks: []string{"attach", "copy", "verify"}}, Cleanup: "release"},
		"build":   {Action: "t.noop"},
		"attach":  {Action: "t.noop"},
		"copy":    {Script: []string{"exit 3"}},
		"verify":  {Action: "t.noop"},
		"release": {Action: "t.release"},
	}
	actions := map[string]ActionFunc{
		"t.noop": noop,
		"t.release": func(context.Context, Call) error {
			released.Add(1)
			return nil
		},
	}
	e, rec := newEngine(t, tasks, actions)

	_, err := e.Run(context.Background(), "deploy", Invocation{})
	var failed *TaskFailedError
	if !errors.As(err, &failed) || failed.Task != "copy" {
		t.Fatalf("Run() error = %v, want TaskFailedError for copy", err)
	}
	if code := ExitCodeOf(err); code != 3 {
		t.Errorf("ExitCodeOf() = %d, want 3", code)
	}
	if n := released.Load(); n != 1 {
		t.Errorf("cleanup fired %d times, want 1", n)
	}
	if rec.index("task-started:verify") >= 0 {
		t.Error("verify started after copy failed")
	}
	if rec.index("cleanup-fired:release") < rec.index("task-finished:copy") {
		t.Errorf("cleanup fired before the failing task finished: %v", rec.trace())
	}
}

func TestRun_CleanupFiresWhenDependencyFails(t *testing.T) {
	t.Parallel()

	var released atomic.Int32
	tasks := map[string]*taskfile.Task{
		"deploy":  {Deps: []string{"build"}, Action: "t.noop", Cleanup: "release"},
		"build":   {Script: []string{"false"}},
		"release": {Action: "t.release"},
	}
	actions := map[string]ActionFunc{
		"t.noop": noop,
		"t.release": func(context.Context, Call) error {
			released.Add(1)
			return nil
		},
	}
	e, rec := newEngine(t, tasks, actions)

	if _, err := e.Run(context.Background(), "deploy", Invocation{}); err == nil {
		t.Fatal("Run() succeeded with a failing dependency")
	}
	if released.Load() != 1 {
		t.Error("cleanup registered before dependencies did not fire")
	}
	if rec.index("task-started:deploy") >= 0 {
		t.Error("deploy body ran after its dependency failed")
	}
}

func TestRun_CleanupFiresBeforeLaterSiblings(t *testing.T) {
	t.Parallel()

	tasks := map[string]*taskfile.Task{
		"run":        {Deps: []string{"make-image", "fwvars"}, Run: &taskfile.Delegation{Tasks: []string{"launch"}}},
		"make-image": {Run: &taskfile.Delegation{Tasks: []string{"attach", "assemble"}}, Cleanup: "detach"},
		"attach":     {Action: "t.noop"},
		"assemble":   {Action: "t.noop"},
		"detach":     {Action: "t.noop"},
		"fwvars":     {Action: "t.noop"},
		"launch":     {Action: "t.noop"},
	}
	e, rec := newEngine(t, tasks, map[string]ActionFunc{"t.noop": noop})

	if _, err := e.Run(context.Background(), "run", Invocation{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	order := []string{
		"task-finished:assemble",
		"task-finished:make-image",
		"cleanup-fired:detach",
		"task-started:fwvars",
		"task-started:launch",
	}
	for i := 1; i < len(order); i++ {
		if rec.index(order[i-1]) >= rec.index(order[i]) {
			t.Errorf("%s should precede %s: %v", order[i-1], order[i], rec.trace())
		}
	}
}

func TestRun_CleanupSurvivesCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cleanupCtxErr error
	tasks := map[string]*taskfile.Task{
		"session": {Action: "t.interrupt", Cleanup: "release"},
		"release": {Action: "t.release"},
	}
	actions := map[string]ActionFunc{
		"t.interrupt": func(ctx context.Context, _ Call) error {
			cancel()
			return ctx.Err()
		},
		"t.release": func(ctx context.Context, _ Call) error {
			cleanupCtxErr = ctx.Err()
			return nil
		},
	}
	e, rec := newEngine(t, tasks, actions)

	_, err := e.Run(ctx, "session", Invocation{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if rec.index("cleanup-fired:release") < 0 {
		t.Fatal("cleanup did not fire after cancellation")
	}
	if cleanupCtxErr != nil {
		t.Errorf("cleanup context error = %v, want nil", cleanupCtxErr)
	}
}

func TestRun_CleanupFailureJoined(t *testing.T) {
	t.Parallel()

	boom := errors.New("umount: target is busy")
	tasks := map[string]*taskfile.Task{
		"deploy":  {Action: "t.noop", Cleanup: "release"},
		"release": {Action: "t.fail"},
	}
	actions := map[string]ActionFunc{
		"t.noop": noop,
		"t.fail": func(context.Context, Call) error { return boom },
	}
	e, _ := newEngine(t, tasks, actions)

	_, err := e.Run(context.Background(), "deploy", Invocation{})
	var cleanupErr *CleanupError
	if !errors.As(err, &cleanupErr) {
		t.Fatalf("Run() error = %v, want CleanupError", err)
	}
	if cleanupErr.Owner != "deploy" || !errors.Is(err, boom) {
		t.Errorf("CleanupError = %+v", cleanupErr)
	}
}

func TestRun_ForkWrapsFailure(t *testing.T) {
	t.Parallel()

	tasks := map[string]*taskfile.Task{
		"outer":  {Run: &taskfile.Delegation{Tasks: []string{"broken"}, Fork: true}},
		"broken": {Script: []string{"exit 7"}},
	}
	e, _ := newEngine(t, tasks, nil)

	_, err := e.Run(context.Background(), "outer", Invocation{})
	var forkErr *ForkError
	if !errors.As(err, &forkErr) || forkErr.Task != "outer" {
		t.Fatalf("Run() error = %v, want ForkError for outer", err)
	}
	if code := ExitCodeOf(err); code != 7 {
		t.Errorf("ExitCodeOf() = %d, want 7", code)
	}
}

func TestRun_InlineFailurePropagatesUnwrapped(t *testing.T) {
	t.Parallel()

	tasks := map[string]*taskfile.Task{
		"outer":  {Run: &taskfile.Delegation{Tasks: []string{"broken"}}},
		"broken": {Script: []string{"exit 7"}},
	}
	e, _ := newEngine(t, tasks, nil)

	_, err := e.Run(context.Background(), "outer", Invocation{})
	var forkErr *ForkError
	if errors.As(err, &forkErr) {
		t.Errorf("inline failure wrapped in ForkError: %v", err)
	}
	var failed *TaskFailedError
	if !errors.As(err, &failed) || failed.ExitCode != 7 {
		t.Errorf("Run() error = %v, want TaskFailedError code 7", err)
	}
}

func TestRun_ForkReusesCompletedTasks(t *testing.T) {
	t.Parallel()

	var shared atomic.Int32
	tasks := map[string]*taskfile.Task{
		"top":    {Deps: []string{"shared"}, Run: &taskfile.Delegation{Tasks: []string{"child"}, Fork: true}},
		"child":  {Deps: []string{"shared"}, Action: "t.noop"},
		"shared": {Action: "t.count"},
	}
	actions := map[string]ActionFunc{
		"t.noop": noop,
		"t.count": func(context.Context, Call) error {
			shared.Add(1)
			return nil
		},
	}
	e, _ := newEngine(t, tasks, actions)

	res, err := e.Run(context.Background(), "top", Invocation{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := shared.Load(); n != 1 {
		t.Errorf("shared ran %d times, want 1", n)
	}
	if want := []string{"shared", "child", "top"}; !slices.Equal(res.Tasks, want) {
		t.Errorf("Tasks = %v, want %v", res.Tasks, want)
	}
}

func TestRun_ParallelForkCompletesBeforeDependent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		loaderFirst bool
	}{
		{"loader finishes first", true},
		{"kernel finishes first", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Each builder waits until both have started, which only
			// succeeds if they run concurrently. The slower builder then
			// waits for the faster one to finish.
			var started sync.WaitGroup
			started.Add(2)
			fasterDone := make(chan struct{})
			build := func(faster bool) ActionFunc {
				return func(context.Context, Call) error {
					started.Done()
					waited := make(chan struct{})
					go func() { started.Wait(); close(waited) }()
					select {
					case <-waited:
					case <-time.After(5 * time.Second):
						return errors.New("builders did not run concurrently")
					}
					if !faster {
						<-fasterDone
						time.Sleep(10 * time.Millisecond)
						return nil
					}
					close(fasterDone)
					return nil
				}
			}

			tasks := map[string]*taskfile.Task{
				"image":        {Deps: []string{"compile"}, Action: "t.noop"},
				"compile":      {Run: &taskfile.Delegation{Tasks: []string{"build-loader", "build-kernel"}, Fork: true, Parallel: true}},
				"build-loader": {Action: "t.loader"},
				"build-kernel": {Action: "t.kernel"},
			}
			actions := map[string]ActionFunc{
				"t.noop":   noop,
				"t.loader": build(tt.loaderFirst),
				"t.kernel": build(!tt.loaderFirst),
			}
			e, rec := newEngine(t, tasks, actions)

			if _, err := e.Run(context.Background(), "image", Invocation{}); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			loader, kernel := rec.index("task-finished:build-loader"), rec.index("task-finished:build-kernel")
			if tt.loaderFirst != (loader < kernel) {
				t.Errorf("completion order not as arranged: %v", rec.trace())
			}
			begin := rec.index("task-started:image")
			for _, i := range []int{loader, kernel} {
				if i < 0 || i > begin {
					t.Errorf("builder not finished before image started: %v", rec.trace())
				}
			}
		})
	}
}

func TestRun_ParallelFailureFailsParent(t *testing.T) {
	t.Parallel()

	tasks := map[string]*taskfile.Task{
		"image":   {Deps: []string{"compile"}, Action: "t.noop"},
		"compile": {Run: &taskfile.Delegation{Tasks: []string{"ok", "bad"}, Fork: true, Parallel: true}},
		"ok":      {Script: []string{"true"}},
		"bad":     {Script: []string{"exit 101"}},
	}
	e, rec := newEngine(t, tasks, map[string]ActionFunc{"t.noop": noop})

	_, err := e.Run(context.Background(), "image", Invocation{})
	var forkErr *ForkError
	if !errors.As(err, &forkErr) {
		t.Fatalf("Run() error = %v, want ForkError", err)
	}
	if ExitCodeOf(err) != 101 {
		t.Errorf("ExitCodeOf() = %d, want 101", ExitCodeOf(err))
	}
	if rec.index("task-started:image") >= 0 {
		t.Error("dependent started after a parallel branch failed")
	}
}

func TestRun_EnvOverridesReachDelegates(t *testing.T) {
	t.Parallel()

	var seen []string
	var mu sync.Mutex
	tasks := map[string]*taskfile.Task{
		"release": {Env: map[string]string{"PROFILE": "release"}, Run: &taskfile.Delegation{Tasks: []string{"build"}}},
		"build":   {Deps: []string{"compile"}, Action: "t.see"},
		"compile": {Action: "t.see"},
	}
	actions := map[string]ActionFunc{"t.see": func(_ context.Context, c Call) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.Task+"="+c.Env.Get("PROFILE"))
		return nil
	}}
	e, _ := newEngine(t, tasks, actions)

	inv := Invocation{Env: map[string]string{"PROFILE": "debug"}}
	if _, err := e.Run(context.Background(), "release", inv); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"compile=release", "build=release"}
	if !slices.Equal(seen, want) {
		t.Errorf("seen = %v, want %v", seen, want)
	}
}

func TestRun_WorkspaceScriptWorstExitCode(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	members := []string{"kernel", "loader", "libs/alloc"}
	for _, m := range members {
		if err := os.MkdirAll(filepath.Join(root, m), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	logPath := filepath.Join(root, "visited.log")

	tasks := map[string]*taskfile.Task{
		"check": {
			Workspace: true,
			Script: []string{
				`echo "$MEMBER ${PWD##*/}" >> "$LOG"`,
				`case "$MEMBER" in kernel) exit 2;; loader) exit 5;; esac`,
			},
		},
	}
	e, _ := newEngine(t, tasks, nil, WithWorkspace(root, members))

	_, err := e.Run(context.Background(), "check", Invocation{Env: map[string]string{"LOG": logPath}})
	var failed *TaskFailedError
	if !errors.As(err, &failed) || failed.ExitCode != 5 {
		t.Fatalf("Run() error = %v, want TaskFailedError code 5", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"kernel kernel", "loader loader", "libs/alloc alloc"}
	if !slices.Equal(got, want) {
		t.Errorf("visited = %v, want %v", got, want)
	}
}

func TestRun_ForwardsArgs(t *testing.T) {
	t.Parallel()

	var args []string
	tasks := map[string]*taskfile.Task{
		"run":    {Run: &taskfile.Delegation{Tasks: []string{"launch"}}},
		"launch": {Action: "t.launch"},
	}
	actions := map[string]ActionFunc{"t.launch": func(_ context.Context, c Call) error {
		args = c.Args
		return nil
	}}
	e, _ := newEngine(t, tasks, actions)

	if _, err := e.Run(context.Background(), "run", Invocation{Args: []string{"-s", "-S"}}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(args, []string{"-s", "-S"}) {
		t.Errorf("args = %v", args)
	}
}

func TestNew_RejectsUnknownAction(t *testing.T) {
	t.Parallel()

	tasks := map[string]*taskfile.Task{"a": {Action: "volume.explode"}}
	_, err := New(taskfile.New(tasks), map[string]ActionFunc{})
	if err == nil || !strings.Contains(err.Error(), `unknown action "volume.explode"`) {
		t.Errorf("New() error = %v", err)
	}
}

func TestNew_RejectsInvalidTable(t *testing.T) {
	t.Parallel()

	tasks := map[string]*taskfile.Task{"a": {Deps: []string{"b"}}, "b": {Deps: []string{"a"}}}
	_, err := New(taskfile.New(tasks), nil)
	if _, ok := taskfile.AsValidationErrors(err); !ok {
		t.Errorf("New() error = %v, want ValidationErrors", err)
	}
}
