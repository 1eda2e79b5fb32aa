package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls a set of directory trees for file changes and invokes a
// callback once per settled burst of changes. Polling keeps the watcher
// working across bind mounts and network filesystems where inotify does
// not fire; the trees involved are small enough that a one second sweep
// is cheap.
type Watcher struct {
	roots    []string
	match    func(path string) bool
	interval time.Duration
	debounce time.Duration
	onChange func()
	logger   *zap.Logger

	mu    sync.Mutex
	seen  map[string]time.Time
	rerun bool
	busy  bool

	// failed tracks roots whose walk failed, so the warning fires on the
	// transition instead of every sweep. Touched only from the sweep loop.
	failed map[string]bool
}

const (
	DefaultInterval = time.Second
	DefaultDebounce = 300 * time.Millisecond
)

// New builds a watcher over roots. match filters which files count as
// interesting; nil watches everything. onChange runs after a burst of
// changes has been quiet for the debounce window.
func New(roots []string, match func(string) bool, onChange func(), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	return &Watcher{
		roots:    roots,
		match:    match,
		interval: DefaultInterval,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logger,
		seen:     make(map[string]time.Time),
		failed:   make(map[string]bool),
	}
}

// SetIntervals overrides the poll and debounce durations. Zero values
// keep the defaults.
func (w *Watcher) SetIntervals(poll, debounce time.Duration) {
	if poll > 0 {
		w.interval = poll
	}
	if debounce > 0 {
		w.debounce = debounce
	}
}

// Run polls until ctx is done. The first sweep primes the state without
// firing the callback, so startup does not trigger a spurious rescan.
func (w *Watcher) Run(ctx context.Context) {
	w.sweep(true)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		pending   bool
		settledAt time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.sweep(false) {
				pending = true
				settledAt = time.Now().Add(w.debounce)
			}
			if pending && time.Now().After(settledAt) {
				pending = false
				w.fire()
			}
		}
	}
}

// sweep walks every root and records mtimes. Returns true when anything
// interesting changed since the previous sweep. An unreachable root is
// logged when it first fails and retried on every later sweep.
func (w *Watcher) sweep(prime bool) bool {
	current := make(map[string]time.Time)
	for _, root := range w.roots {
		var rootErr error
		filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if path == root {
					rootErr = err
				}
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.match(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			current[path] = info.ModTime()
			return nil
		})
		switch {
		case rootErr != nil && !w.failed[root]:
			w.logger.Warn("watch root unavailable", zap.String("root", root), zap.Error(rootErr))
			w.failed[root] = true
		case rootErr == nil && w.failed[root]:
			w.logger.Info("watch root back", zap.String("root", root))
			delete(w.failed, root)
		}
	}

	w.mu.Lock()
	prev := w.seen
	w.seen = current
	w.mu.Unlock()

	if prime {
		return false
	}
	if len(prev) != len(current) {
		return true
	}
	for path, mtime := range current {
		if old, ok := prev[path]; !ok || !old.Equal(mtime) {
			return true
		}
	}
	return false
}

// fire runs the callback, collapsing overlapping triggers into a single
// trailing rerun so a change arriving mid-callback is not lost.
func (w *Watcher) fire() {
	w.mu.Lock()
	if w.busy {
		w.rerun = true
		w.mu.Unlock()
		return
	}
	w.busy = true
	w.mu.Unlock()

	go func() {
		for {
			w.onChange()
			w.mu.Lock()
			if !w.rerun {
				w.busy = false
				w.mu.Unlock()
				return
			}
			w.rerun = false
			w.mu.Unlock()
		}
	}()
}

// MarkdownOrJSON matches the files the capability registry cares about.
func MarkdownOrJSON(path string) bool {
	switch filepath.Ext(path) {
	case ".md", ".json":
		return true
	}
	return false
}
