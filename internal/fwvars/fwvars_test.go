// SPDX-License-Identifier: MPL-2.0

package fwvars

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "OVMF_VARS.fd")
	if err := os.WriteFile(path, []byte("pristine"), 0o444); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEnsure_CreatesFromTemplate(t *testing.T) {
	t.Parallel()

	tmpl := writeTemplate(t)
	path := filepath.Join(t.TempDir(), "target", "vars.fd")

	created, err := Ensure(path, tmpl)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !created {
		t.Error("Ensure() reported no copy")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pristine" {
		t.Errorf("store = %q, want template contents", got)
	}
}

func TestEnsure_KeepsExistingStore(t *testing.T) {
	t.Parallel()

	tmpl := writeTemplate(t)
	path := filepath.Join(t.TempDir(), "vars.fd")
	if err := os.WriteFile(path, []byte("boot order changed"), 0o644); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		created, err := Ensure(path, tmpl)
		if err != nil {
			t.Fatalf("Ensure() error = %v", err)
		}
		if created {
			t.Error("Ensure() overwrote an existing store")
		}
	}
	got, _ := os.ReadFile(path)
	if string(got) != "boot order changed" {
		t.Errorf("store = %q, want unchanged contents", got)
	}
}

func TestEnsure_MissingTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vars.fd")

	_, err := Ensure(path, filepath.Join(dir, "missing.fd"))
	if !errors.Is(err, ErrTemplateMissing) {
		t.Fatalf("Ensure() error = %v, want ErrTemplateMissing", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("store created without a template")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	tmpl := writeTemplate(t)
	path := filepath.Join(t.TempDir(), "vars.fd")
	if err := os.WriteFile(path, []byte("state"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Discard(path); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("store still present after Discard")
	}
	if err := Discard(path); err != nil {
		t.Errorf("second Discard() error = %v", err)
	}

	created, err := Ensure(path, tmpl)
	if err != nil || !created {
		t.Fatalf("Ensure() after Discard = %v, %v", created, err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "pristine" {
		t.Errorf("store = %q, want pristine template copy", got)
	}
}
