// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/internal/taskfile"
)

// MemberEnvKey holds the workspace member a workspace-scoped script runs for.
const MemberEnvKey = "MEMBER"

type (
	// Call is what an action receives.
	Call struct {
		Task string
		Env  Env
		// Args are the arguments forwarded to the run.
		Args []string
	}

	// ActionFunc implements a built-in task body.
	ActionFunc func(ctx context.Context, call Call) error

	// ScriptRunner executes script bodies.
	ScriptRunner interface {
		Run(ctx context.Context, s runtime.Script) (runtime.ExitCode, error)
	}

	// Invocation parameterizes one run.
	Invocation struct {
		// Args are forwarded to script bodies as positional parameters and to
		// actions.
		Args []string
		// Env is the base environment table.
		Env map[string]string
	}

	// Result summarizes a run.
	Result struct {
		// Tasks lists the tasks whose bodies finished, in completion order.
		Tasks []string
	}

	// Engine executes entry points of a validated task table.
	Engine struct {
		table    *taskfile.Table
		actions  map[string]ActionFunc
		shell    ScriptRunner
		root     string
		members  []string
		stdout   io.Writer
		stderr   io.Writer
		logger   *slog.Logger
		observer Observer
	}

	// Option configures an Engine.
	Option func(*Engine)

	// runState is shared by every scope of one run.
	runState struct {
		mu       sync.Mutex
		finished []string
	}
)

// WithShell sets the script runner. The default is the embedded shell.
func WithShell(shell ScriptRunner) Option {
	return func(e *Engine) { e.shell = shell }
}

// WithWorkspace sets the project root and the members workspace-scoped
// scripts iterate over.
func WithWorkspace(root string, members []string) Option {
	return func(e *Engine) {
		e.root = root
		e.members = members
	}
}

// WithOutput sets where script output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Engine) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver installs an event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an Engine. The table is validated and every action it names
// must be present in actions.
func New(table *taskfile.Table, actions map[string]ActionFunc, opts ...Option) (*Engine, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	var missing []error
	for _, name := range table.Names() {
		task, _ := table.Get(name)
		if task.Action == "" {
			continue
		}
		if _, ok := actions[task.Action]; !ok {
			missing = append(missing, fmt.Errorf("task %q: unknown action %q", name, task.Action))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	e := &Engine{
		table:   table,
		actions: actions,
		shell:   runtime.NewShellRuntime(),
		stdout:  io.Discard,
		stderr:  io.Discard,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes entry and everything it depends on. An unknown or private
// entry fails before any task runs. Cleanup obligations registered during the
// run have all fired when Run returns.
func (e *Engine) Run(ctx context.Context, entry string, inv Invocation) (Result, error) {
	task, ok := e.table.Get(entry)
	if !ok || task.Private {
		return Result{}, &UnknownTaskError{Name: entry, Private: ok}
	}

	rs := &runState{}
	s := newScope(inv.Args)
	err := e.runTask(ctx, rs, s, entry, NewEnv(inv.Env))
	if derr := e.drain(ctx, rs, s); derr != nil {
		err = errors.Join(err, derr)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return Result{Tasks: rs.finished}, err
}

// runTask runs name at most once per run. Later callers wait for the first
// and share its outcome; a forked scope reuses what its parents completed.
func (e *Engine) runTask(ctx context.Context, rs *runState, s *scope, name string, env Env) error {
	if s.inherited(name) {
		return nil
	}
	st, first := s.claim(name)
	if !first {
		<-st.done
		return st.err
	}
	err := e.execute(ctx, rs, s, name, env)
	st.err = err
	close(st.done)
	return err
}

func (e *Engine) execute(ctx context.Context, rs *runState, s *scope, name string, parent Env) (err error) {
	task, _ := e.table.Get(name)
	env, err := parent.With(task.Env)
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}
	log := e.logger.With("task", name)

	if task.Cleanup != "" {
		o := s.push(name, task.Cleanup, env)
		log.Debug("registered cleanup", "cleanup", task.Cleanup)
		defer func() {
			if cerr := e.fire(ctx, rs, s, o); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
	}

	for _, dep := range task.Deps {
		if err := e.runTask(ctx, rs, s, dep, env); err != nil {
			return err
		}
	}

	e.emit(Event{Kind: TaskStarted, Task: name})
	log.Debug("task started", "kind", task.Kind())
	err = e.body(ctx, rs, s, task, env)
	e.emit(Event{Kind: TaskFinished, Task: name, Err: err})
	if err != nil {
		log.Debug("task failed", "error", err)
		return err
	}
	log.Debug("task finished")

	rs.mu.Lock()
	rs.finished = append(rs.finished, name)
	rs.mu.Unlock()
	return nil
}

func (e *Engine) body(ctx context.Context, rs *runState, s *scope, task *taskfile.Task, env Env) error {
	switch task.Kind() {
	case taskfile.BodyScript:
		return e.script(ctx, s, task, env)
	case taskfile.BodyAction:
		if err := e.actions[task.Action](ctx, Call{Task: task.Name, Env: env, Args: s.args}); err != nil {
			return fmt.Errorf("%s: %w", task.Name, err)
		}
		return nil
	case taskfile.BodyRun:
		return e.delegate(ctx, rs, s, task, env)
	default:
		return nil
	}
}

func (e *Engine) script(ctx context.Context, s *scope, task *taskfile.Task, env Env) error {
	run := func(dir string, env Env) (runtime.ExitCode, error) {
		return e.shell.Run(ctx, runtime.Script{
			Name:   task.Name,
			Lines:  task.Script,
			Dir:    dir,
			Env:    env.Map(),
			Args:   s.args,
			Stdout: e.stdout,
			Stderr: e.stderr,
		})
	}

	var code runtime.ExitCode
	if !task.Workspace || len(e.members) == 0 {
		c, err := run(e.root, env)
		if err != nil {
			return fmt.Errorf("%s: %w", task.Name, err)
		}
		code = c
	} else {
		// Every member runs even after a failure; the worst status wins.
		for _, member := range e.members {
			memberEnv, err := env.With(map[string]string{MemberEnvKey: member})
			if err != nil {
				return err
			}
			c, err := run(filepath.Join(e.root, filepath.FromSlash(member)), memberEnv)
			if err != nil {
				return fmt.Errorf("%s [%s]: %w", task.Name, member, err)
			}
			if !c.IsSuccess() {
				e.logger.Warn("workspace member failed", "task", task.Name, "member", member, "exit_code", c)
			}
			code = code.Worst(c)
		}
	}
	if !code.IsSuccess() {
		return &TaskFailedError{Task: task.Name, ExitCode: code}
	}
	return nil
}

func (e *Engine) delegate(ctx context.Context, rs *runState, s *scope, task *taskfile.Task, env Env) (err error) {
	d := task.Run
	target := s
	if d.Fork {
		target = s.fork()
		defer func() {
			if derr := e.drain(ctx, rs, target); derr != nil {
				err = errors.Join(err, derr)
			}
			if err != nil {
				err = &ForkError{Task: task.Name, Err: err}
			}
		}()
	}

	if !d.Parallel {
		for _, child := range d.Tasks {
			if err := e.runTask(ctx, rs, target, child, env); err != nil {
				return err
			}
		}
		return nil
	}

	// gctx only gates starting: a failed sibling keeps the rest from starting
	// but does not cancel siblings already running.
	g, gctx := errgroup.WithContext(ctx)
	for _, child := range d.Tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return e.runTask(ctx, rs, target, child, env)
		})
	}
	return g.Wait()
}

// fire runs a registered cleanup if it is still pending. It ignores
// cancellation of ctx so that resources are released on interrupt.
func (e *Engine) fire(ctx context.Context, rs *runState, s *scope, o *obligation) error {
	if !s.take(o) {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	e.logger.Debug("firing cleanup", "task", o.owner, "cleanup", o.cleanup)

	// Cleanup bodies bypass memoization so each obligation fires exactly once.
	err := e.execute(ctx, rs, s, o.cleanup, o.env)
	e.emit(Event{Kind: CleanupFired, Task: o.cleanup, Owner: o.owner, Err: err})
	if err != nil {
		e.logger.Warn("cleanup failed", "task", o.owner, "cleanup", o.cleanup, "error", err)
		return &CleanupError{Owner: o.owner, Cleanup: o.cleanup, Err: err}
	}
	return nil
}

// drain fires every obligation left in s, most recent first.
func (e *Engine) drain(ctx context.Context, rs *runState, s *scope) error {
	var errs []error
	for _, o := range s.pending() {
		if err := e.fire(ctx, rs, s, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
