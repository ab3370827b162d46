// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs a build when workspace sources change.
//
// Filesystem events are filtered through glob patterns and coalesced: a
// trigger fires once the tree has been quiet for the debounce period, with
// every path that changed. Changes that arrive while a trigger is running are
// kept and fire one follow-up trigger after it returns.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Options.Debounce is unset.
const DefaultDebounce = 300 * time.Millisecond

var (
	// DefaultPatterns select the sources of a Cargo workspace.
	DefaultPatterns = []string{
		"**/*.rs",
		"**/*.ld",
		"**/Cargo.toml",
		"Cargo.lock",
		".cargo/config.toml",
		"bootforge.cue",
	}

	// builtinIgnores are never watched. Build output lives under target/.
	builtinIgnores = []string{
		"target",
		"target/**",
		".git",
		"**/.git/**",
		"**/*.swp",
		"**/*~",
		"**/.DS_Store",
	}

	// ErrClosed is returned by Run when the event source closes underneath it.
	ErrClosed = errors.New("watch: event source closed")
)

type (
	// Options configure a Watcher.
	Options struct {
		// Root is the directory tree to watch.
		Root string
		// Patterns select the paths, relative to Root, that trigger a run.
		// Empty selects DefaultPatterns.
		Patterns []string
		// Ignore excludes paths relative to Root in addition to the built-in
		// ignores. A directory that matches is not descended into.
		Ignore []string
		// Debounce is the quiet period before a trigger fires.
		Debounce time.Duration
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Trigger is called with the sorted paths, relative to the root, that
	// changed since the previous call.
	Trigger func(ctx context.Context, changed []string) error

	// Watcher observes a directory tree.
	Watcher struct {
		root     string
		patterns []string
		ignore   []string
		debounce time.Duration
		logger   *slog.Logger
		fsw      *fsnotify.Watcher
	}

	// PatternError reports a malformed glob.
	PatternError struct {
		Pattern string
	}
)

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("watch: invalid pattern %q", e.Pattern)
}

// New validates opts and registers every directory under the root that is
// not ignored.
func New(opts Options) (*Watcher, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}

	w := &Watcher{
		root:     root,
		patterns: opts.Patterns,
		ignore:   append(slices.Clone(builtinIgnores), opts.Ignore...),
		debounce: opts.Debounce,
		logger:   opts.Logger,
	}
	if len(w.patterns) == 0 {
		w.patterns = DefaultPatterns
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	for _, p := range slices.Concat(w.patterns, w.ignore) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if err := w.addTree(root); err != nil {
		w.fsw.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return w, nil
}

// Run dispatches triggers until ctx is cancelled. At most one trigger runs at
// a time; Run waits for it before returning. Trigger errors are logged, not
// returned.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	defer w.fsw.Close() //nolint:errcheck // nothing left to report to

	var (
		pending = make(map[string]struct{})
		fire    <-chan time.Time
		done    chan error
	)
	for {
		select {
		case <-ctx.Done():
			if done != nil {
				<-done
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}
			if ev.Has(fsnotify.Create) {
				w.addIfDir(ev.Name)
			}
			rel, ok := w.Matches(ev.Name)
			if !ok {
				continue
			}
			pending[rel] = struct{}{}
			if done == nil {
				fire = time.After(w.debounce)
			}

		case <-fire:
			fire = nil
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			done = make(chan error, 1)
			go func(ch chan<- error) { ch <- trigger(ctx, changed) }(done)

		case err := <-done:
			done = nil
			if err != nil {
				w.logger.Warn("watched run failed", "error", err)
			}
			if len(pending) > 0 {
				fire = time.After(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}
			if exhausted(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Matches reports whether path triggers a run, and returns it relative to the
// root.
func (w *Watcher) Matches(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") || w.ignored(rel) {
		return "", false
	}
	return rel, matchAny(w.patterns, rel)
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignore, rel)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("not watching", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && w.ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

// addIfDir extends the watch to a directory created after startup.
func (w *Watcher) addIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("watch new directory", "path", path, "error", err)
	}
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

// exhausted reports errors after which the event source stops delivering:
// watch descriptor or file descriptor limits.
func exhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE)
}
