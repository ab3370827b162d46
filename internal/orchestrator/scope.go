// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"slices"
	"sync"
)

type (
	// scope is the mutable state of one run, or of one forked subtree. A
	// forked scope reads the memo of its parent but never writes to it.
	scope struct {
		args   []string
		parent *scope

		mu          sync.Mutex
		states      map[string]*taskState
		obligations []*obligation
		nextID      int
	}

	// taskState memoizes one task. done is closed once err is final.
	taskState struct {
		done chan struct{}
		err  error
	}

	// obligation is a registered cleanup that has not fired yet.
	obligation struct {
		id      int
		owner   string
		cleanup string
		env     Env
	}
)

func newScope(args []string) *scope {
	return &scope{args: args, states: make(map[string]*taskState)}
}

// fork returns a child scope for an isolated subtree.
func (s *scope) fork() *scope {
	return &scope{args: s.args, parent: s, states: make(map[string]*taskState)}
}

// inherited reports whether an enclosing scope already ran name
// successfully. A run still in progress there is waited for. Failures are
// not inherited; the fork runs the task itself.
func (s *scope) inherited(name string) bool {
	for p := s.parent; p != nil; p = p.parent {
		p.mu.Lock()
		st, ok := p.states[name]
		p.mu.Unlock()
		if !ok {
			continue
		}
		<-st.done
		return st.err == nil
	}
	return false
}

// claim returns the state for name and whether the caller is the first to
// reach it and must run the task.
func (s *scope) claim(name string) (*taskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		return st, false
	}
	st := &taskState{done: make(chan struct{})}
	s.states[name] = st
	return st, true
}

func (s *scope) push(owner, cleanup string, env Env) *obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o := &obligation{id: s.nextID, owner: owner, cleanup: cleanup, env: env}
	s.obligations = append(s.obligations, o)
	return o
}

// take removes o from the stack and reports whether it was still pending.
func (s *scope) take(o *obligation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.obligations, func(p *obligation) bool { return p.id == o.id })
	if i < 0 {
		return false
	}
	s.obligations = slices.Delete(s.obligations, i, i+1)
	return true
}

// pending returns the obligations still registered, most recent first.
func (s *scope) pending() []*obligation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.obligations)
	slices.Reverse(out)
	return out
}
