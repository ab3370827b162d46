// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/shell"
	"mvdan.cc/sh/v3/syntax"
)

type (
	// Script is a task body to run in the embedded shell.
	Script struct {
		// Name is used in parse error messages.
		Name string
		// Lines are run in order as one program; `set -e` semantics apply, so the
		// first failing line stops the script.
		Lines []string
		// Dir is the working directory.
		Dir string
		// Env is the complete environment visible to the script.
		Env map[string]string
		// Args become the positional parameters ($1, $2, "$@").
		Args []string

		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// ShellRuntime executes scripts with mvdan/sh, so task bodies behave the same
	// on every host without depending on the host shell.
	ShellRuntime struct{}
)

// NewShellRuntime creates a shell runtime.
func NewShellRuntime() *ShellRuntime {
	return &ShellRuntime{}
}

// Validate parses the script without running it.
func (r *ShellRuntime) Validate(s Script) error {
	_, err := parseScript(s)
	return err
}

// Run executes the script and returns its exit status. Parse failures and
// interpreter faults are returned as errors.
func (r *ShellRuntime) Run(ctx context.Context, s Script) (ExitCode, error) {
	prog, err := parseScript(s)
	if err != nil {
		return 1, err
	}

	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(EnvToSlice(s.Env)...)),
		interp.StdIO(s.Stdin, s.Stdout, s.Stderr),
	}
	if s.Dir != "" {
		opts = append(opts, interp.Dir(s.Dir))
	}
	// "--" keeps forwarded flags like "-s" from being read as shell options.
	opts = append(opts, interp.Params(append([]string{"-e", "--"}, s.Args...)...))

	runner, err := interp.New(opts...)
	if err != nil {
		return 1, fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	if err == nil {
		return 0, nil
	}
	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		return ExitCode(exitStatus), nil
	}
	return 1, fmt.Errorf("script %s failed: %w", s.Name, err)
}

func parseScript(s Script) (*syntax.File, error) {
	src := strings.Join(s.Lines, "\n")
	prog, err := syntax.NewParser().Parse(strings.NewReader(src), s.Name)
	if err != nil {
		return nil, fmt.Errorf("script syntax error: %w", err)
	}
	return prog, nil
}

// Expand resolves ${KEY} and $KEY references in a template against env.
// Unknown keys expand to the empty string.
func Expand(template string, env map[string]string) (string, error) {
	out, err := shell.Expand(template, func(key string) string { return env[key] })
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", template, err)
	}
	return out, nil
}
