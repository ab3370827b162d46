// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"maps"

	"github.com/bootforge/bootforge/internal/runtime"
)

// Env is an immutable key/value table visible to task bodies. Derived tables
// are built with With; the receiver is never modified.
type Env struct {
	vars map[string]string
}

// NewEnv copies vars into a new Env.
func NewEnv(vars map[string]string) Env {
	return Env{vars: maps.Clone(vars)}
}

// Get returns the value of key, or "" when unset.
func (e Env) Get(key string) string {
	return e.vars[key]
}

// Lookup returns the value of key and whether it is set.
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// With returns a child Env in which overrides shadow the receiver's values.
// Override values are templates expanded against the receiver.
func (e Env) With(overrides map[string]string) (Env, error) {
	if len(overrides) == 0 {
		return e, nil
	}
	child := make(map[string]string, len(e.vars)+len(overrides))
	maps.Copy(child, e.vars)
	for k, v := range overrides {
		expanded, err := runtime.Expand(v, e.vars)
		if err != nil {
			return Env{}, err
		}
		child[k] = expanded
	}
	return Env{vars: child}, nil
}

// Expand resolves ${KEY} references in template.
func (e Env) Expand(template string) (string, error) {
	return runtime.Expand(template, e.vars)
}

// Map returns a copy of the table.
func (e Env) Map() map[string]string {
	return maps.Clone(e.vars)
}
