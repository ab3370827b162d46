// SPDX-License-Identifier: MPL-2.0

package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bootforge/bootforge/internal/assemble"
	"github.com/bootforge/bootforge/internal/config"
	"github.com/bootforge/bootforge/internal/emulator"
	"github.com/bootforge/bootforge/internal/fwvars"
	"github.com/bootforge/bootforge/internal/issue"
	"github.com/bootforge/bootforge/internal/orchestrator"
	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/internal/symbols"
	"github.com/bootforge/bootforge/internal/volume"
	"github.com/bootforge/bootforge/pkg/platform"
)

// Action names bound by Registry.
const (
	SymbolsStrip       = "symbols.strip"
	VolumeRequireDrive = "volume.require-drive"
	VolumeAttachImage  = "volume.attach-image"
	VolumeAttachDrive  = "volume.attach-drive"
	VolumeDetach       = "volume.detach"
	ImageAssemble      = "image.assemble"
	FwvarsEnsure       = "fwvars.ensure"
	FwvarsDiscard      = "fwvars.discard"
	EmulatorLaunch     = "emulator.launch"
)

// ErrNotAttached is returned when artifacts are assembled before a volume
// was attached.
var ErrNotAttached = errors.New("no volume attached")

type (
	// Options carry everything the actions of one run need.
	Options struct {
		Config *config.Config
		Host   platform.Host
		Runner runtime.Runner
		// Drive is the removable drive for USB deployment.
		Drive string
		// Interactive runs the emulator on a pseudo terminal.
		Interactive bool
		// RunID tags the run lock.
		RunID string
		// MountCheck overrides the active-mount probe.
		MountCheck func(path string) (bool, error)
	}

	// Actions implements the built-in task bodies for one run.
	Actions struct {
		cfg         *config.Config
		host        platform.Host
		drive       string
		interactive bool
		runID       string
		runner      runtime.Runner

		volumes  *volume.Manager
		launcher *emulator.Launcher

		mu     sync.Mutex
		handle *volume.Handle
		lock   *runtime.RunLock
		// locked is the mount point the held lock guards.
		locked string
	}
)

// New creates the actions for one run.
func New(opts Options) *Actions {
	cfg := opts.Config
	return &Actions{
		cfg:         cfg,
		host:        opts.Host,
		drive:       opts.Drive,
		interactive: opts.Interactive,
		runID:       opts.RunID,
		runner:      opts.Runner,
		volumes: volume.NewManager(opts.Runner, opts.Host.Mount, volume.Options{
			Label:      volume.Label(cfg.Project),
			Mkfs:       cfg.Tools.Mkfs,
			MountCheck: opts.MountCheck,
		}),
		launcher: emulator.NewLauncher(opts.Runner, opts.Host),
	}
}

// Registry binds action names to their implementations.
func (a *Actions) Registry() map[string]orchestrator.ActionFunc {
	return map[string]orchestrator.ActionFunc{
		SymbolsStrip:       a.strip,
		VolumeRequireDrive: a.requireDrive,
		VolumeAttachImage:  a.attachImage,
		VolumeAttachDrive:  a.attachDrive,
		VolumeDetach:       a.detach,
		ImageAssemble:      a.assemble,
		FwvarsEnsure:       a.ensureVars,
		FwvarsDiscard:      a.discardVars,
		EmulatorLaunch:     a.launch,
	}
}

// setting returns the value of key in env, or fallback when the table does
// not carry it. Relative values resolve against the project root.
func (a *Actions) setting(env orchestrator.Env, key, fallback string) string {
	if v := env.Get(key); v != "" {
		return a.cfg.Abs(v)
	}
	return a.cfg.Abs(fallback)
}

func (a *Actions) mountPoint(env orchestrator.Env) string {
	return a.setting(env, config.EnvMountPoint, a.cfg.Image.MountPoint)
}

func (a *Actions) imagePath(env orchestrator.Env) string {
	return a.setting(env, config.EnvImagePath, a.cfg.Image.Path)
}

func (a *Actions) varsPath(env orchestrator.Env) string {
	return a.setting(env, config.EnvFirmwareVars, a.cfg.Firmware.VarsPath)
}

func (a *Actions) objcopy(env orchestrator.Env) string {
	if v := env.Get(config.EnvObjcopy); v != "" {
		return v
	}
	return a.cfg.Tools.Objcopy
}

func (a *Actions) varsTemplate() string {
	if a.cfg.Firmware.VarsTemplate != "" {
		return a.cfg.Abs(a.cfg.Firmware.VarsTemplate)
	}
	return a.host.FirmwareVarsTemplate
}

func (a *Actions) artifacts(env orchestrator.Env) assemble.Artifacts {
	profile := env.Get(config.EnvProfile)
	return assemble.Artifacts{
		Loader: a.cfg.Abs(a.cfg.Loader.Artifact(profile)),
		Kernel: a.cfg.Abs(a.cfg.Kernel.Artifact(profile)),
	}
}

func (a *Actions) strip(ctx context.Context, call orchestrator.Call) error {
	stripper := symbols.NewStripper(a.runner, a.objcopy(call.Env))
	_, err := stripper.Strip(ctx, a.artifacts(call.Env).Kernel)
	return err
}

func (a *Actions) requireDrive(context.Context, orchestrator.Call) error {
	if a.drive != "" {
		return nil
	}
	return driveRequired()
}

func driveRequired() error {
	return issue.NewErrorContext().
		WithOperation("install onto removable drive").
		WithIssue(issue.DriveNotSpecifiedId).
		WithSuggestion("Pass the drive partition with --drive, e.g. --drive /dev/sdb1").
		WithSuggestion("List removable drives with 'lsblk' (Linux) or 'diskutil list' (macOS)").
		Wrap(volume.ErrDriveRequired).
		BuildError()
}

func (a *Actions) attachImage(ctx context.Context, call orchestrator.Call) error {
	image, mnt := a.imagePath(call.Env), a.mountPoint(call.Env)
	return a.attach(mnt, func() (*volume.Handle, error) {
		return a.volumes.AttachImage(ctx, image, mnt)
	})
}

func (a *Actions) attachDrive(ctx context.Context, call orchestrator.Call) error {
	if a.drive == "" {
		return driveRequired()
	}
	mnt := a.mountPoint(call.Env)
	return a.attach(mnt, func() (*volume.Handle, error) {
		return a.volumes.AttachDrive(ctx, a.drive, mnt)
	})
}

// attach takes the run lock for mnt and records the handle, even a partially
// attached one, so detach can release it.
func (a *Actions) attach(mnt string, fn func() (*volume.Handle, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lock != nil && a.locked != mnt {
		return fmt.Errorf("attach %s: run already holds %s", mnt, a.locked)
	}
	if a.lock == nil {
		lock, err := a.acquireLock(mnt)
		if err != nil {
			return err
		}
		a.lock, a.locked = lock, mnt
	}

	h, err := fn()
	if h != nil {
		a.handle = h
	}
	return err
}

func (a *Actions) acquireLock(mnt string) (*runtime.RunLock, error) {
	path := mnt + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock, err := runtime.AcquireRunLock(path, a.runID)
	if errors.Is(err, runtime.ErrRunLocked) {
		return nil, issue.NewErrorContext().
			WithOperation("attach volume").
			WithResource(mnt).
			WithIssue(issue.MountPointBusyId).
			WithSuggestion("Wait for the other run to finish").
			WithSuggestion("Concurrent runs against one mount point are not supported").
			Wrap(err).
			BuildError()
	}
	return lock, err
}

func (a *Actions) assemble(ctx context.Context, call orchestrator.Call) error {
	a.mu.Lock()
	h := a.handle
	a.mu.Unlock()
	if h == nil || !h.Attached {
		return ErrNotAttached
	}
	return assemble.Assemble(ctx, h.MountPoint, a.artifacts(call.Env), a.cfg.Image.SettleDelay)
}

// detach unmounts the volume if this run, or a crashed earlier one, left it
// mounted. A run that attached detaches the mount point it attached; a mount
// point locked by another live run is left alone.
func (a *Actions) detach(ctx context.Context, call orchestrator.Call) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	mnt := a.locked
	if a.lock == nil {
		mnt = a.mountPoint(call.Env)
		// Nothing attached by this run and nothing left behind.
		if mounted, err := a.volumes.Mounted(mnt); err == nil && !mounted {
			return nil
		}
		lock, err := a.acquireLock(mnt)
		if err != nil {
			slog.Warn("mount point in use by another run, not detaching", "mount_point", mnt, "error", err)
			return nil
		}
		a.lock, a.locked = lock, mnt
	}
	defer func() {
		a.lock.Release()
		a.lock, a.locked = nil, ""
	}()

	h := a.handle
	if h == nil {
		h = &volume.Handle{MountPoint: mnt, FS: volume.FAT32}
	}
	if err := a.volumes.Detach(ctx, h); err != nil {
		return err
	}
	a.handle = nil
	return nil
}

func (a *Actions) ensureVars(_ context.Context, call orchestrator.Call) error {
	_, err := fwvars.Ensure(a.varsPath(call.Env), a.varsTemplate())
	if errors.Is(err, fwvars.ErrTemplateMissing) {
		return issue.NewErrorContext().
			WithOperation("create firmware variable store").
			WithResource(a.varsTemplate()).
			WithIssue(issue.FirmwareTemplateMissingId).
			WithSuggestion("Install OVMF (edk2) firmware for your host").
			WithSuggestion("Set firmware.vars_template in " + config.ConfigFileName).
			Wrap(err).
			BuildError()
	}
	return err
}

func (a *Actions) discardVars(_ context.Context, call orchestrator.Call) error {
	return fwvars.Discard(a.varsPath(call.Env))
}

func (a *Actions) launch(ctx context.Context, call orchestrator.Call) error {
	opts := emulator.Options{
		Binary:       a.cfg.Emulator.Binary,
		FirmwareVars: a.varsPath(call.Env),
		Disk:         a.imagePath(call.Env),
		GDBPort:      a.cfg.Emulator.GDBPort,
		ExtraDevices: a.cfg.Emulator.ExtraDevices,
		Forward:      call.Args,
		Interactive:  a.interactive,
	}
	code, err := a.launcher.Launch(ctx, opts)
	if err != nil {
		return err
	}
	if !code.IsSuccess() {
		return &runtime.ToolError{Command: opts.Binary, ExitCode: code}
	}
	return nil
}
