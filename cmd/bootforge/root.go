// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bootforge/bootforge/internal/issue"
	"github.com/bootforge/bootforge/internal/orchestrator"
	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/internal/taskfile"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// tasksGroup holds the subcommands generated from the task table.
const tasksGroup = "tasks"

// rootFlags are the global flags shared by every subcommand.
type rootFlags struct {
	verbose     bool
	configPath  string
	drive       string
	interactive bool
}

// newRootCommand builds the command tree. One subcommand is generated for
// every public task in table.
func newRootCommand(app *App, table *taskfile.Table) *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "bootforge",
		Short: "Build, package and boot a bare-metal OS image",
		Long: TitleStyle.Render("bootforge") + SubtitleStyle.Render(" - Build, package and boot a bare-metal OS image") + `

bootforge compiles the loader and kernel of a Cargo workspace, assembles them
into a FAT32 disk image or onto a removable drive, and boots the result in an
emulator with UEFI firmware.

Every subcommand listed under Tasks runs one entry point of the task table.
Projects add or override tasks in bootforge.cue.

` + SubtitleStyle.Render("Examples:") + `
  bootforge build                    Compile debug artifacts
  bootforge run -- -display none     Boot the debug image, forwarding emulator flags
  bootforge usb --drive /dev/sdb1    Deploy to a removable drive
  bootforge plan make-image          Show what make-image would run`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.logger = newLogger(cmd.ErrOrStderr(), flags.verbose)
			if app.defaultLogger {
				slog.SetDefault(app.logger)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "project file (default is ./bootforge.cue)")
	rootCmd.PersistentFlags().StringVar(&flags.drive, "drive", "", "removable drive for usb and release-usb")
	rootCmd.PersistentFlags().BoolVarP(&flags.interactive, "interactive", "i", false, "attach the emulator through a pseudo terminal")

	rootCmd.AddGroup(&cobra.Group{ID: tasksGroup, Title: "Tasks:"})
	reserved := map[string]bool{"help": true, "completion": true}
	for _, c := range []*cobra.Command{
		newTasksCommand(app, flags),
		newPlanCommand(app, flags),
		newConfigCommand(app, flags),
	} {
		reserved[c.Name()] = true
		rootCmd.AddCommand(c)
	}
	for _, task := range table.Public() {
		if reserved[task.Name] {
			slog.Debug("task shadowed by a built-in command", "task", task.Name)
			continue
		}
		rootCmd.AddCommand(newTaskCommand(app, flags, task))
	}
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the command tree and runs it. This is called by main.main().
func Execute() {
	ctx := context.Background()
	app := NewApp(Dependencies{})
	app.defaultLogger = true
	rootCmd := newRootCommand(app, commandTable(ctx, app, configFlag(os.Args[1:])))

	if err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code.Process())
		}
		os.Exit(1)
	}
}

// commandTable returns the task table subcommands are generated from. A
// project that fails to load still gets the built-in tasks; the error
// surfaces once a task actually runs.
func commandTable(ctx context.Context, app *App, configPath string) *taskfile.Table {
	if _, table, err := app.LoadProject(ctx, configPath); err == nil {
		return table
	}
	table, err := taskfile.Builtin()
	if err != nil {
		return taskfile.New(nil)
	}
	return table
}

// configFlag extracts the --config value before cobra parses the command
// line, since the command tree depends on it.
func configFlag(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return ""
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// newLogger creates a slog logger backed by a charmbracelet/log handler.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "bootforge",
		ReportTimestamp: true,
		Level:           level,
	})
	return slog.New(handler)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// reportError prints err and, in verbose mode, the matching catalog entry.
func reportError(w io.Writer, err error, verboseMode bool) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verboseMode))
	if !verboseMode {
		return
	}
	if entry := issue.Get(issueFor(err)); entry != nil {
		if rendered, rerr := entry.Render("dark"); rerr == nil {
			fmt.Fprint(w, rendered)
		}
	}
}

// issueFor picks the catalog entry describing err, or zero.
func issueFor(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}
	var unknown *orchestrator.UnknownTaskError
	if errors.As(err, &unknown) {
		return issue.TaskNotFoundId
	}
	var toolErr *runtime.ToolError
	if errors.As(err, &toolErr) {
		return issue.ToolFailedId
	}
	return 0
}
