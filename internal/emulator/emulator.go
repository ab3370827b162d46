// SPDX-License-Identifier: MPL-2.0

// Package emulator derives the QEMU command line for the assembled image and
// runs it in the foreground.
package emulator

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/pkg/platform"
)

const (
	// DefaultBinary is the emulator used when none is configured.
	DefaultBinary = "qemu-system-x86_64"
	// DefaultGDBPort is the remote debug port exposed by the emulator.
	DefaultGDBPort = 1234
)

type (
	// Options describe one emulator session.
	Options struct {
		Binary string
		// FirmwareVars is the mutable variable store.
		FirmwareVars string
		// Disk is the primary block device: an image file or a drive.
		Disk    string
		GDBPort int
		// ExtraDevices are added as -device arguments after the fixed profile.
		ExtraDevices []string
		// Forward is appended verbatim.
		Forward []string
		// Interactive attaches the session to a pseudo terminal.
		Interactive bool
	}

	// Launcher starts the emulator for a resolved host.
	Launcher struct {
		runner runtime.Runner
		host   platform.Host
	}
)

// NewLauncher creates a Launcher.
func NewLauncher(runner runtime.Runner, host platform.Host) *Launcher {
	return &Launcher{runner: runner, host: host}
}

// Args builds the emulator argument list. The result depends only on its
// inputs.
func Args(host platform.Host, o Options) []string {
	port := o.GDBPort
	if port == 0 {
		port = DefaultGDBPort
	}
	args := []string{
		"-drive", "if=pflash,format=raw,readonly=on,file=" + host.FirmwareCode,
		"-drive", "if=pflash,format=raw,file=" + o.FirmwareVars,
		"-drive", "if=ide,index=0,media=disk,format=raw,file=" + o.Disk,
		"-machine", "q35",
		"-cpu", "max",
		"-smp", "4",
		"-device", "nec-usb-xhci,id=xhci",
		"-m", "256M",
		"-gdb", "tcp::" + strconv.Itoa(port),
	}
	for _, d := range o.ExtraDevices {
		args = append(args, "-device", d)
	}
	if host.Accelerate {
		args = append(args, "-enable-kvm")
	}
	return append(args, o.Forward...)
}

// Launch runs the emulator until it exits and returns its exit status.
func (l *Launcher) Launch(ctx context.Context, o Options) (runtime.ExitCode, error) {
	binary := o.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	cmd := runtime.Command{
		Name:   binary,
		Args:   Args(l.host, o),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	slog.Info("launching emulator", "cmd", cmd.String(), "interactive", o.Interactive)

	if o.Interactive {
		return runInteractive(ctx, cmd)
	}
	return l.runner.Run(ctx, cmd)
}
