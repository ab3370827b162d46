// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bootforge/bootforge/internal/actions"
	"github.com/bootforge/bootforge/internal/config"
	"github.com/bootforge/bootforge/internal/issue"
	"github.com/bootforge/bootforge/internal/orchestrator"
	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/internal/taskfile"
	"github.com/bootforge/bootforge/pkg/platform"
)

type (
	// HostResolver resolves the host platform once per run.
	HostResolver func(opts platform.Options) platform.Host

	// App wires CLI services and shared dependencies. Every command handler
	// receives an App and delegates to it.
	App struct {
		Config config.Provider
		Runner runtime.Runner
		// Shell runs script bodies; nil selects the embedded shell.
		Shell orchestrator.ScriptRunner
		Host  HostResolver
		// MountCheck overrides the active-mount probe used by detach.
		MountCheck func(path string) (bool, error)
		stdout     io.Writer
		stderr     io.Writer
		logger     *slog.Logger
		// defaultLogger installs logger as the process-wide slog default.
		defaultLogger bool
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     config.Provider
		Runner     runtime.Runner
		Shell      orchestrator.ScriptRunner
		Host       HostResolver
		MountCheck func(path string) (bool, error)
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// RunRequest captures the inputs of one task run.
	RunRequest struct {
		// Task is the entry point.
		Task string
		// Args are forwarded to script bodies and to the emulator.
		Args []string
		// ConfigPath is the explicit --config flag value.
		ConfigPath  string
		Drive       string
		Interactive bool
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     deps.Config,
		Runner:     deps.Runner,
		Shell:      deps.Shell,
		Host:       deps.Host,
		MountCheck: deps.MountCheck,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Runner == nil {
		app.Runner = &runtime.NativeRunner{Stdout: app.stdout, Stderr: app.stderr}
	}
	if app.Host == nil {
		app.Host = platform.Detect
	}
	return app
}

// LoadProject loads the configuration and the effective task table: the
// built-in tasks with the project's definitions merged over them.
func (a *App) LoadProject(ctx context.Context, configPath string) (*config.Config, *taskfile.Table, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: configPath})
	if err != nil {
		return nil, nil, err
	}
	builtin, err := taskfile.Builtin()
	if err != nil {
		return nil, nil, err
	}
	table := builtin.Merge(cfg.Tasks)
	if err := table.Validate(); err != nil {
		return nil, nil, issue.NewErrorContext().
			WithOperation("validate task table").
			WithResource(cfg.Source).
			WithSuggestion("Fix the task definitions reported below").
			WithSuggestion("Run 'bootforge tasks' to list the effective table").
			WithIssue(issue.TaskTableInvalidId).
			Wrap(err).
			BuildError()
	}
	return cfg, table, nil
}

// Run executes one entry point of the task table.
func (a *App) Run(ctx context.Context, req RunRequest) error {
	cfg, table, err := a.LoadProject(ctx, req.ConfigPath)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run", runID)

	host := a.Host(platform.Options{
		FirmwareCode:         cfg.Firmware.Code,
		FirmwareVarsTemplate: cfg.Abs(cfg.Firmware.VarsTemplate),
		Sudo:                 cfg.Tools.Sudo,
	})
	logger.Debug("host resolved", "os", host.OS, "mount", host.Mount.Name(), "accelerate", host.Accelerate)

	acts := actions.New(actions.Options{
		Config:      cfg,
		Host:        host,
		Runner:      a.Runner,
		Drive:       req.Drive,
		Interactive: req.Interactive,
		RunID:       runID,
		MountCheck:  a.MountCheck,
	})

	opts := []orchestrator.Option{
		orchestrator.WithWorkspace(cfg.Root, cfg.Members),
		orchestrator.WithOutput(a.stdout, a.stderr),
		orchestrator.WithLogger(logger),
	}
	if a.Shell != nil {
		opts = append(opts, orchestrator.WithShell(a.Shell))
	}
	engine, err := orchestrator.New(table, acts.Registry(), opts...)
	if err != nil {
		return err
	}

	env, err := cfg.BaseEnv()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := engine.Run(ctx, req.Task, orchestrator.Invocation{Args: req.Args, Env: env})
	logger.Debug("run finished", "task", req.Task, "completed", len(res.Tasks), "elapsed", time.Since(start))
	return err
}
