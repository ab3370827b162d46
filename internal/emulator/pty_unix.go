// SPDX-License-Identifier: MPL-2.0

//go:build unix

package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"

	"github.com/bootforge/bootforge/internal/runtime"
)

// runInteractive runs cmd on a pseudo terminal wired to the caller's terminal,
// so the guest's serial console behaves like a local tty.
func runInteractive(ctx context.Context, cmd runtime.Command) (runtime.ExitCode, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	ptmx, err := pty.Start(c)
	if err != nil {
		return 1, fmt.Errorf("start %s on a pty: %w", cmd.Name, err)
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer func() {
		signal.Stop(winch)
		close(winch)
	}()
	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	winch <- syscall.SIGWINCH

	if term.IsTerminal(int(os.Stdin.Fd())) {
		state, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return 1, fmt.Errorf("raw terminal: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), state)
	}

	stop, err := forwardInput(ptmx, os.Stdin)
	if err != nil {
		return 1, err
	}
	_, _ = io.Copy(os.Stdout, ptmx)
	stop()

	err = c.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return runtime.ExitCode(exitErr.ExitCode()), nil
	}
	return 1, fmt.Errorf("wait for %s: %w", cmd.Name, err)
}

// forwardInput copies src to dst until stop is called. stop interrupts a
// pending read, so input typed after the session belongs to the next reader.
func forwardInput(dst io.Writer, src *os.File) (stop func(), err error) {
	r, err := cancelreader.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(dst, r)
	}()
	return func() {
		if r.Cancel() {
			<-done
		}
		_ = r.Close()
	}, nil
}
