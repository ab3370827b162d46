// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bootforge/bootforge/internal/orchestrator"
	"github.com/bootforge/bootforge/internal/taskfile"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

// newTaskCommand creates the subcommand running one entry point. Arguments
// after "--" are forwarded to the run.
func newTaskCommand(app *App, flags *rootFlags, task *taskfile.Task) *cobra.Command {
	var watchMode bool
	cmd := &cobra.Command{
		Use:     task.Name + " [-- args...]",
		Short:   task.Description,
		GroupID: tasksGroup,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && cmd.ArgsLenAtDash() != 0 {
				return fmt.Errorf("unexpected argument %q: pass task arguments after --", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := RunRequest{
				Task:        task.Name,
				Args:        args,
				ConfigPath:  flags.configPath,
				Drive:       flags.drive,
				Interactive: flags.interactive,
			}
			if watchMode {
				return watchTask(cmd, app, flags, req)
			}
			return fail(cmd, flags, app.Run(cmd.Context(), req))
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "re-run when workspace sources change")
	return cmd
}

// fail reports err and converts it into the process exit status. A nil err
// passes through.
func fail(cmd *cobra.Command, flags *rootFlags, err error) error {
	if err == nil {
		return nil
	}
	cmd.SilenceErrors = true
	reportError(cmd.ErrOrStderr(), err, flags.verbose)
	return &ExitError{Code: exitErrorFor(err).Code}
}

// newTasksCommand creates `bootforge tasks`.
func newTasksCommand(app *App, flags *rootFlags) *cobra.Command {
	var (
		format string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks of the effective task table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, table, err := app.LoadProject(cmd.Context(), flags.configPath)
			if err != nil {
				return fail(cmd, flags, err)
			}
			tasks := table.Public()
			if all {
				tasks = make([]*taskfile.Task, 0, len(table.Names()))
				for _, name := range table.Names() {
					task, _ := table.Get(name)
					tasks = append(tasks, task)
				}
			}
			switch format {
			case formatText:
				printTasks(cmd.OutOrStdout(), tasks)
				return nil
			case formatYAML:
				out, err := yaml.Marshal(tasks)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			default:
				return fmt.Errorf("unknown format %q (want %s or %s)", format, formatText, formatYAML)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", formatText, "output format: text or yaml")
	cmd.Flags().BoolVar(&all, "all", false, "include internal tasks")
	return cmd
}

func printTasks(w io.Writer, tasks []*taskfile.Task) {
	width := 0
	for _, task := range tasks {
		width = max(width, len(task.Name))
	}
	fmt.Fprintln(w, TitleStyle.Render("Tasks"))
	for _, task := range tasks {
		name := CmdStyle.Render(task.Name + strings.Repeat(" ", width-len(task.Name)))
		desc := task.Description
		if task.Private {
			desc = strings.TrimSpace(desc + " " + SubtitleStyle.Render("(internal)"))
		}
		fmt.Fprintf(w, "  %s  %s\n", name, desc)
	}
}

// newPlanCommand creates `bootforge plan <entry>`.
func newPlanCommand(app *App, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <task>",
		Short: "Show the tasks an entry point runs, in execution order",
		Long: `Show the tasks an entry point runs, in execution order.

Nothing is executed. Tasks that register a cleanup are annotated with it; the
cleanup runs after the task's subtree finishes, whether it succeeded or not.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, table, err := app.LoadProject(cmd.Context(), flags.configPath)
			if err == nil {
				err = printPlan(cmd.OutOrStdout(), table, args[0])
			}
			return fail(cmd, flags, err)
		},
	}
}

func printPlan(w io.Writer, table *taskfile.Table, entry string) error {
	task, ok := table.Get(entry)
	if !ok || task.Private {
		return &orchestrator.UnknownTaskError{Name: entry, Private: ok}
	}
	order, err := table.Plan(entry)
	if err != nil {
		return fmt.Errorf("plan %s: %w", entry, err)
	}

	fmt.Fprintln(w, TitleStyle.Render(entry))
	for i, name := range order {
		line := fmt.Sprintf("  %2d. %s", i+1, CmdStyle.Render(name))
		if t, _ := table.Get(name); t.Cleanup != "" {
			line += " " + WarningStyle.Render("(cleanup: "+t.Cleanup+")")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
