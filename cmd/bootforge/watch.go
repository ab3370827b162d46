// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bootforge/bootforge/internal/config"
	"github.com/bootforge/bootforge/internal/watch"
)

// watchTask runs req once, then again whenever a watched source changes,
// until the command context is cancelled. Failed runs are reported and the
// watch continues.
func watchTask(cmd *cobra.Command, app *App, flags *rootFlags, req RunRequest) error {
	ctx := cmd.Context()
	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: req.ConfigPath})
	if err != nil {
		return fail(cmd, flags, err)
	}

	logger := app.logger
	if logger == nil {
		logger = slog.Default()
	}
	w, err := watch.New(watch.Options{
		Root:     cfg.Root,
		Patterns: cfg.Watch.Patterns,
		Ignore:   append(watchIgnores(cfg), cfg.Watch.Ignore...),
		Debounce: cfg.Watch.Debounce,
		Logger:   logger,
	})
	if err != nil {
		return fail(cmd, flags, err)
	}

	stderr := cmd.ErrOrStderr()
	run := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			fmt.Fprintf(stderr, "%s %s\n", SubtitleStyle.Render("changed:"), strings.Join(changed, ", "))
		}
		if err := app.Run(ctx, req); err != nil {
			reportError(stderr, err, flags.verbose)
			return nil
		}
		fmt.Fprintln(stderr, SuccessStyle.Render("✓ "+req.Task))
		return nil
	}

	run(ctx, nil) //nolint:errcheck // run reports its own failures
	fmt.Fprintln(stderr, SubtitleStyle.Render("watching "+cfg.Root+" (Ctrl+C to stop)"))
	return fail(cmd, flags, w.Run(ctx, run))
}

// watchIgnores excludes the files a run writes itself, so a run never
// triggers the next one.
func watchIgnores(cfg *config.Config) []string {
	var ignores []string
	for _, p := range []string{cfg.Image.Path, cfg.Image.MountPoint, cfg.Firmware.VarsPath} {
		rel, err := filepath.Rel(cfg.Root, cfg.Abs(p))
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}
		ignores = append(ignores, rel, rel+"/**")
	}
	return ignores
}
