// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"slices"
	"testing"
)

func TestResolve_Darwin(t *testing.T) {
	t.Parallel()

	h := Resolve(Darwin, 501, 20, Options{Sudo: "sudo"})
	if h.Accelerate {
		t.Error("macOS must not request KVM acceleration")
	}
	if h.Mount.Name() != "hdiutil" {
		t.Errorf("mount strategy = %q, want hdiutil", h.Mount.Name())
	}
	want := []string{"hdiutil", "attach", "-mountpoint", "mnt", "disk.img"}
	if got := h.Mount.AttachImage("disk.img", "mnt"); !slices.Equal(got, want) {
		t.Errorf("AttachImage() = %v, want %v", got, want)
	}
	if got := h.Mount.Detach("mnt"); !slices.Equal(got, []string{"hdiutil", "detach", "mnt"}) {
		t.Errorf("Detach() = %v", got)
	}
	if h.FirmwareCode != defaultFirmwareCode[Darwin] {
		t.Errorf("FirmwareCode = %q", h.FirmwareCode)
	}
}

func TestResolve_Linux(t *testing.T) {
	t.Parallel()

	h := Resolve(Linux, 1000, 1001, Options{Sudo: "sudo"})
	if !h.Accelerate {
		t.Error("linux should request KVM acceleration")
	}
	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{
			"image",
			h.Mount.AttachImage("disk.img", "mnt"),
			[]string{"sudo", "mount", "-o", "loop,uid=1000,gid=1001", "disk.img", "mnt"},
		},
		{
			"drive",
			h.Mount.AttachDrive("/dev/sdb1", "mnt"),
			[]string{"sudo", "mount", "-o", "uid=1000,gid=1001", "/dev/sdb1", "mnt"},
		},
		{"detach", h.Mount.Detach("mnt"), []string{"sudo", "umount", "mnt"}},
	}
	for _, tt := range tests {
		if !slices.Equal(tt.got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestResolve_NoSudoAndFirmwareOverride(t *testing.T) {
	t.Parallel()

	h := Resolve(Linux, 0, 0, Options{
		FirmwareCode:         map[string]string{Linux: "/srv/OVMF_CODE.fd", Darwin: "/ignored.fd"},
		FirmwareVarsTemplate: "/srv/OVMF_VARS.fd",
	})
	if h.FirmwareCode != "/srv/OVMF_CODE.fd" {
		t.Errorf("FirmwareCode = %q, want override", h.FirmwareCode)
	}
	if h.FirmwareVarsTemplate != "/srv/OVMF_VARS.fd" {
		t.Errorf("FirmwareVarsTemplate = %q, want override", h.FirmwareVarsTemplate)
	}
	if got := h.Mount.Detach("mnt"); !slices.Equal(got, []string{"umount", "mnt"}) {
		t.Errorf("Detach() without sudo = %v", got)
	}
}
