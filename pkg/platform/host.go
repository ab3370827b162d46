// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"os"
	"runtime"
	"strconv"
)

// Host OS families with distinct firmware paths and mount tooling.
const (
	Darwin = "darwin"
	Linux  = "linux"
)

var (
	// Default firmware code images per host OS.
	defaultFirmwareCode = map[string]string{
		Darwin: "/opt/homebrew/share/qemu/edk2-x86_64-code.fd",
		Linux:  "/usr/share/OVMF/OVMF_CODE.fd",
	}

	// Default read-only variable store templates per host OS.
	defaultFirmwareVars = map[string]string{
		Darwin: "/opt/homebrew/share/qemu/edk2-i386-vars.fd",
		Linux:  "/usr/share/OVMF/OVMF_VARS.fd",
	}
)

type (
	// MountStrategy builds the host command lines that attach and detach volumes.
	MountStrategy interface {
		// Name identifies the strategy in logs.
		Name() string
		// AttachImage mounts a raw image file at mountPoint.
		AttachImage(image, mountPoint string) []string
		// AttachDrive mounts an existing filesystem on a block device at mountPoint.
		AttachDrive(device, mountPoint string) []string
		// Detach unmounts whatever is mounted at mountPoint.
		Detach(mountPoint string) []string
	}

	// Options are the configurable inputs to host resolution.
	Options struct {
		// FirmwareCode overrides the firmware code image per host OS.
		FirmwareCode map[string]string
		// FirmwareVarsTemplate overrides the variable store template.
		FirmwareVarsTemplate string
		// Sudo is the privilege helper used by loop mounts. Empty disables it.
		Sudo string
	}

	// Host is the resolved host capability set.
	Host struct {
		// OS is the runtime.GOOS value this host was resolved for.
		OS string
		// FirmwareCode is the read-only firmware image handed to the emulator.
		FirmwareCode string
		// FirmwareVarsTemplate is copied to create a fresh variable store.
		FirmwareVarsTemplate string
		// Accelerate enables -enable-kvm. macOS needs a different backend.
		Accelerate bool
		// Mount attaches and detaches volumes.
		Mount MountStrategy
	}

	// hdiutilMount uses the native macOS image attach tooling.
	hdiutilMount struct{}

	// loopMount uses mount(8) with explicit ownership so the invoking user owns
	// the files written into the FAT volume.
	loopMount struct {
		sudo     string
		uid, gid int
	}
)

// Detect resolves the Host for the running process.
func Detect(opts Options) Host {
	return Resolve(runtime.GOOS, os.Getuid(), os.Getgid(), opts)
}

// Resolve builds a Host for goos. uid and gid are only used by loop mounts.
func Resolve(goos string, uid, gid int, opts Options) Host {
	h := Host{
		OS:                   goos,
		FirmwareCode:         defaultFirmwareCode[goos],
		FirmwareVarsTemplate: defaultFirmwareVars[goos],
		Accelerate:           goos != Darwin,
	}
	if code, ok := opts.FirmwareCode[goos]; ok && code != "" {
		h.FirmwareCode = code
	}
	if opts.FirmwareVarsTemplate != "" {
		h.FirmwareVarsTemplate = opts.FirmwareVarsTemplate
	}
	if goos == Darwin {
		h.Mount = hdiutilMount{}
	} else {
		h.Mount = loopMount{sudo: opts.Sudo, uid: uid, gid: gid}
	}
	return h
}

func (hdiutilMount) Name() string { return "hdiutil" }

func (hdiutilMount) AttachImage(image, mountPoint string) []string {
	return []string{"hdiutil", "attach", "-mountpoint", mountPoint, image}
}

func (hdiutilMount) AttachDrive(device, mountPoint string) []string {
	return []string{"diskutil", "mount", "-mountPoint", mountPoint, device}
}

func (hdiutilMount) Detach(mountPoint string) []string {
	return []string{"hdiutil", "detach", mountPoint}
}

func (m loopMount) Name() string { return "loop" }

func (m loopMount) AttachImage(image, mountPoint string) []string {
	return m.withSudo("mount", "-o", "loop,"+m.owner(), image, mountPoint)
}

func (m loopMount) AttachDrive(device, mountPoint string) []string {
	return m.withSudo("mount", "-o", m.owner(), device, mountPoint)
}

func (m loopMount) Detach(mountPoint string) []string {
	return m.withSudo("umount", mountPoint)
}

func (m loopMount) owner() string {
	return "uid=" + strconv.Itoa(m.uid) + ",gid=" + strconv.Itoa(m.gid)
}

func (m loopMount) withSudo(argv ...string) []string {
	if m.sudo == "" {
		return argv
	}
	return append([]string{m.sudo}, argv...)
}
