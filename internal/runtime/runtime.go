// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

type (
	// Command describes one host process invocation.
	Command struct {
		// Name is the program to run, resolved through PATH.
		Name string
		// Args are passed verbatim.
		Args []string
		// Dir is the working directory; empty means the current directory.
		Dir string
		// Env is the complete environment as KEY=VALUE pairs. Nil inherits the host environment.
		Env []string
		// Stdin, Stdout and Stderr default to the null device when nil.
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Runner starts host processes and waits for them. A non-zero exit status is
	// reported through the ExitCode with a nil error; the error is reserved for
	// failures to start or wait (missing binary, context cancelled).
	Runner interface {
		Run(ctx context.Context, cmd Command) (ExitCode, error)
	}

	// NativeRunner runs commands with os/exec.
	NativeRunner struct {
		// Stdout and Stderr are used for commands that leave their streams unset.
		Stdout io.Writer
		Stderr io.Writer
	}
)

// NewNativeRunner creates a runner that streams unset outputs to the process stdio.
func NewNativeRunner() *NativeRunner {
	return &NativeRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// String renders the command as a shell-quoted line for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		q, err := syntax.Quote(p, syntax.LangBash)
		if err != nil {
			q = fmt.Sprintf("%q", p)
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// Run executes cmd and returns its exit status.
func (r *NativeRunner) Run(ctx context.Context, cmd Command) (ExitCode, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdin = cmd.Stdin
	c.Stdout = firstWriter(cmd.Stdout, r.Stdout)
	c.Stderr = firstWriter(cmd.Stderr, r.Stderr)

	slog.Debug("exec", "cmd", cmd.String(), "dir", cmd.Dir)

	err := c.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitCode(exitErr.ExitCode()), nil
	}
	return 1, fmt.Errorf("failed to execute %s: %w", cmd.Name, err)
}

func firstWriter(ws ...io.Writer) io.Writer {
	for _, w := range ws {
		if w != nil {
			return w
		}
	}
	return nil
}

// EnvToSlice converts an environment map to sorted KEY=VALUE pairs.
func EnvToSlice(env map[string]string) []string {
	keys := slices.Sorted(maps.Keys(env))
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}

// EnvFromSlice parses KEY=VALUE pairs; malformed entries are skipped.
func EnvFromSlice(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}
