// SPDX-License-Identifier: MPL-2.0

package orchestrator

import "testing"

func TestEnv_WithShadowsWithoutMutating(t *testing.T) {
	t.Parallel()

	parent := NewEnv(map[string]string{"PROFILE": "debug", "TARGET": "target"})
	child, err := parent.With(map[string]string{
		"PROFILE": "release",
		"OUT":     "${TARGET}/${PROFILE}",
	})
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}

	tests := []struct {
		env  Env
		key  string
		want string
	}{
		{parent, "PROFILE", "debug"},
		{child, "PROFILE", "release"},
		{child, "TARGET", "target"},
		// Overrides expand against the parent, not against each other.
		{child, "OUT", "target/debug"},
	}
	for _, tt := range tests {
		if got := tt.env.Get(tt.key); got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
	if _, ok := parent.Lookup("OUT"); ok {
		t.Error("parent gained a key from With")
	}
}

func TestEnv_MapIsACopy(t *testing.T) {
	t.Parallel()

	env := NewEnv(map[string]string{"A": "1"})
	m := env.Map()
	m["A"] = "2"
	if env.Get("A") != "1" {
		t.Error("mutating Map() changed the Env")
	}
}

func TestEnv_Expand(t *testing.T) {
	t.Parallel()

	env := NewEnv(map[string]string{"CARGO": "cargo", "FLAG": "--release"})
	got, err := env.Expand("${CARGO} build ${FLAG} ${UNSET}")
	if err != nil {
		t.Fatal(err)
	}
	if got != "cargo build --release " {
		t.Errorf("Expand() = %q", got)
	}
}
