// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bootforge/bootforge/internal/config"
)

// newConfigCommand creates the `bootforge config` command tree.
func newConfigCommand(app *App, flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the project configuration",
		Long: `Inspect the project configuration.

The configuration is read from bootforge.cue in the working directory, or from
the file given with --config. BOOTFORGE_* environment variables override file
values, e.g. BOOTFORGE_IMAGE_MOUNT_POINT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return fail(cmd, flags, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the project file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return fail(cmd, flags, err)
			}
			if cfg.Source == "" {
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("no project file, using defaults in "+cfg.Root))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Source)
			return nil
		},
	})

	return cfgCmd
}
