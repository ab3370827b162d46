// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Catalog entries. Zero is reserved for "no issue".
const (
	ProjectFileInvalidId Id = iota + 1
	TaskNotFoundId
	TaskTableInvalidId
	DriveNotSpecifiedId
	MountPointBusyId
	ToolFailedId
	FirmwareTemplateMissingId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is the Markdown body of a catalog entry.
	MarkdownMsg string

	// Issue is a catalog entry with operator guidance.
	Issue struct {
		id    Id
		mdMsg MarkdownMsg
	}
)

// Id returns the catalog identifier.
func (i *Issue) Id() Id {
	return i.id
}

// MarkdownMsg returns the raw Markdown guidance.
func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// Render renders the guidance for the terminal using the given glamour style
// ("dark", "light", "notty", "auto" or a path to a style file).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(strings.TrimSpace(string(i.mdMsg)), stylePath)
}

var (
	render = glamour.Render

	projectFileInvalidIssue = &Issue{
		id: ProjectFileInvalidId,
		mdMsg: `
# The project file could not be loaded

bootforge reads ` + "`bootforge.cue`" + ` from the current directory, or the file
given with ` + "`--config`" + `.

## Things you can try
- Run ` + "`bootforge config show`" + ` to see the effective defaults
- Check the CUE syntax and the field names reported in the error`,
	}

	taskNotFoundIssue = &Issue{
		id: TaskNotFoundId,
		mdMsg: `
# Unknown task

The requested entry point is not defined, or it is a private helper task
that can only run as a dependency.

## Things you can try
- List the available entry points:
~~~
$ bootforge tasks
~~~`,
	}

	taskTableInvalidIssue = &Issue{
		id: TaskTableInvalidId,
		mdMsg: `
# The task table is inconsistent

A task refers to a dependency, cleanup or delegated task that does not exist,
declares more than one body, or the dependency graph contains a cycle.

## Things you can try
- Inspect the resolved order with ` + "`bootforge plan <task>`" + `
- Review the ` + "`tasks`" + ` section of ` + "`bootforge.cue`",
	}

	driveNotSpecifiedIssue = &Issue{
		id: DriveNotSpecifiedId,
		mdMsg: `
# No removable drive given

USB deployment erases the target filesystem, so the drive must be named
explicitly. Nothing was built, created or mounted.

## Things you can try
~~~
$ bootforge usb --drive /dev/sdb1        # Linux
$ bootforge usb --drive /dev/disk4s1     # macOS
~~~`,
	}

	mountPointBusyIssue = &Issue{
		id: MountPointBusyId,
		mdMsg: `
# The mount point is in use by another run

Only one image build may use a mount point at a time. Another bootforge
process holds the lock file next to the mount point.

## Things you can try
- Wait for the other run to finish
- If no other run is active, check for a stale mount with ` + "`mount`",
	}

	toolFailedIssue = &Issue{
		id: ToolFailedId,
		mdMsg: `
# An external tool failed

The compiler, formatter, mount helper or emulator exited with a non-zero
status. Pending cleanups (unmounting) were still run.

## Things you can try
- Re-run with ` + "`--verbose`" + ` to see every command line
- Run the failing command by hand to see its full output`,
	}

	firmwareTemplateMissingIssue = &Issue{
		id: FirmwareTemplateMissingId,
		mdMsg: `
# Firmware variable template not found

The writable firmware variable store is created from a read-only template
the first time the emulator starts.

## Things you can try
- Install OVMF / edk2 firmware for your host
- Point ` + "`firmware.vars_template`" + ` at the template file`,
	}

	issues = map[Id]*Issue{
		projectFileInvalidIssue.Id():      projectFileInvalidIssue,
		taskNotFoundIssue.Id():            taskNotFoundIssue,
		taskTableInvalidIssue.Id():        taskTableInvalidIssue,
		driveNotSpecifiedIssue.Id():       driveNotSpecifiedIssue,
		mountPointBusyIssue.Id():          mountPointBusyIssue,
		toolFailedIssue.Id():              toolFailedIssue,
		firmwareTemplateMissingIssue.Id(): firmwareTemplateMissingIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, is := range issues {
		out = append(out, is)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
