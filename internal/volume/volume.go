// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bootforge/bootforge/internal/runtime"
	"github.com/bootforge/bootforge/pkg/platform"
)

const (
	// ImageSize is the size of a freshly allocated disk image.
	ImageSize int64 = 200 << 20

	// FAT32 is the only filesystem kind attached by this package.
	FAT32 FSKind = "fat32"

	// maxLabelLen is the FAT volume label limit.
	maxLabelLen = 11
)

// ErrDriveRequired is returned by AttachDrive when no drive was named.
var ErrDriveRequired = errors.New("no removable drive specified")

type (
	// FSKind names a filesystem type.
	FSKind string

	// Handle describes an attached (or formerly attached) volume. Attached is
	// true only while MountPoint is an active mount backed by Backing.
	Handle struct {
		Backing    string
		MountPoint string
		FS         FSKind
		Attached   bool
	}

	// Options configure a Manager.
	Options struct {
		// Label is the FAT volume label for new images.
		Label string
		// Mkfs is the FAT formatter binary.
		Mkfs string
		// MountCheck reports whether a path is an active mount. Nil uses
		// IsMounted.
		MountCheck func(path string) (bool, error)
	}

	// Manager attaches and detaches volumes through host tools.
	Manager struct {
		runner runtime.Runner
		mount  platform.MountStrategy
		opts   Options
	}
)

// NewManager creates a Manager using the host's mount strategy.
func NewManager(runner runtime.Runner, mount platform.MountStrategy, opts Options) *Manager {
	if opts.Mkfs == "" {
		opts.Mkfs = "mkfs.fat"
	}
	if opts.MountCheck == nil {
		opts.MountCheck = IsMounted
	}
	return &Manager{runner: runner, mount: mount, opts: opts}
}

// Label derives a FAT volume label from a project name. The label is cut to
// the FAT byte limit at a rune boundary.
func Label(project string) string {
	label := strings.ToUpper(project)
	cut := 0
	for cut < len(label) {
		_, size := utf8.DecodeRuneInString(label[cut:])
		if cut+size > maxLabelLen {
			break
		}
		cut += size
	}
	return label[:cut]
}

// AttachImage mounts image at mountPoint, allocating and formatting the image
// first when it does not exist yet. An existing image is reused as-is.
func (m *Manager) AttachImage(ctx context.Context, image, mountPoint string) (*Handle, error) {
	h := &Handle{Backing: image, MountPoint: mountPoint, FS: FAT32}

	if _, err := os.Stat(image); errors.Is(err, os.ErrNotExist) {
		if err := m.createImage(ctx, image); err != nil {
			return h, err
		}
	} else if err != nil {
		return h, fmt.Errorf("stat image %s: %w", image, err)
	}

	if err := m.attach(ctx, h, m.mount.AttachImage(image, mountPoint)); err != nil {
		return h, err
	}
	return h, nil
}

// AttachDrive mounts the filesystem already present on device and empties it.
// An empty device fails with ErrDriveRequired before anything is touched.
func (m *Manager) AttachDrive(ctx context.Context, device, mountPoint string) (*Handle, error) {
	if device == "" {
		return nil, ErrDriveRequired
	}
	h := &Handle{Backing: device, MountPoint: mountPoint, FS: FAT32}

	if err := m.attach(ctx, h, m.mount.AttachDrive(device, mountPoint)); err != nil {
		return h, err
	}
	if err := clearDir(mountPoint); err != nil {
		return h, fmt.Errorf("clear drive %s: %w", device, err)
	}
	slog.Info("cleared removable drive", "device", device, "mount_point", mountPoint)
	return h, nil
}

// Mounted reports whether path is an active mount.
func (m *Manager) Mounted(path string) (bool, error) {
	return m.opts.MountCheck(path)
}

// Detach unmounts h.MountPoint if it is an active mount. Calling it on a
// volume that is not mounted is a no-op.
func (m *Manager) Detach(ctx context.Context, h *Handle) error {
	if h == nil || h.MountPoint == "" {
		return nil
	}
	mounted, err := m.opts.MountCheck(h.MountPoint)
	if err != nil {
		return fmt.Errorf("check mount %s: %w", h.MountPoint, err)
	}
	if !mounted {
		slog.Debug("mount point not mounted, nothing to detach", "mount_point", h.MountPoint)
		h.Attached = false
		return nil
	}

	if err := runtime.Check(ctx, m.runner, command(m.mount.Detach(h.MountPoint))); err != nil {
		return fmt.Errorf("detach %s: %w", h.MountPoint, err)
	}
	h.Attached = false
	slog.Info("detached volume", "mount_point", h.MountPoint, "strategy", m.mount.Name())
	return nil
}

func (m *Manager) attach(ctx context.Context, h *Handle, argv []string) error {
	if err := os.MkdirAll(h.MountPoint, 0o755); err != nil {
		return fmt.Errorf("create mount point %s: %w", h.MountPoint, err)
	}
	if err := runtime.Check(ctx, m.runner, command(argv)); err != nil {
		return fmt.Errorf("attach %s: %w", h.Backing, err)
	}
	h.Attached = true
	slog.Info("attached volume", "backing", h.Backing, "mount_point", h.MountPoint, "strategy", m.mount.Name())
	return nil
}

// createImage allocates a sparse image and formats it. A file that could not
// be formatted is removed so the next run starts over.
func (m *Manager) createImage(ctx context.Context, image string) error {
	if err := os.MkdirAll(filepath.Dir(image), 0o755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	f, err := os.OpenFile(image, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create image %s: %w", image, err)
	}
	if err := f.Truncate(ImageSize); err != nil {
		f.Close()
		os.Remove(image)
		return fmt.Errorf("allocate image %s: %w", image, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(image)
		return fmt.Errorf("close image %s: %w", image, err)
	}

	cmd := runtime.Command{
		Name: m.opts.Mkfs,
		Args: []string{"-n", m.opts.Label, "-s", "2", "-R", "32", "-f", "2", "-F", "32", image},
	}
	if err := runtime.Check(ctx, m.runner, cmd); err != nil {
		os.Remove(image)
		return fmt.Errorf("format image %s: %w", image, err)
	}
	slog.Info("created disk image", "path", image, "label", m.opts.Label, "size", ImageSize)
	return nil
}

func command(argv []string) runtime.Command {
	return runtime.Command{Name: argv[0], Args: argv[1:]}
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
