// Package watcher observes a source tree and triggers pipeline reruns
// when files change. Events are debounced and batched so a burst of
// saves produces a single rerun.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TreeWatcher watches a directory tree recursively
type TreeWatcher struct {
	watcher   *fsnotify.Watcher
	root      string
	onChange  func(paths []string)
	shouldAdd func(relPath string) bool

	mu       sync.Mutex
	watched  map[string]bool
	debounce time.Duration
	pending  []string
	timer    *time.Timer
}

// Config holds watcher configuration
type Config struct {
	Root          string
	DebounceDelay time.Duration             // delay before triggering OnChange (default: 1s)
	OnChange      func(paths []string)      // receives the batch of changed paths
	ShouldWatch   func(relPath string) bool // directory filter, nil watches everything
}

// New creates a watcher rooted at cfg.Root. The tree is registered
// immediately; new subdirectories are picked up as they appear.
func New(cfg Config) (*TreeWatcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("watch root cannot be empty")
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = time.Second
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &TreeWatcher{
		watcher:   fsw,
		root:      root,
		onChange:  cfg.OnChange,
		shouldAdd: cfg.ShouldWatch,
		watched:   make(map[string]bool),
		debounce:  cfg.DebounceDelay,
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// addTree registers root and every wanted subdirectory beneath it
func (w *TreeWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(w.root, p)
		if rerr != nil {
			return rerr
		}
		if rel != "." && w.shouldAdd != nil && !w.shouldAdd(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.addDir(p)
	})
}

func (w *TreeWatcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watched[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}

// Start processes events until the context is cancelled
func (w *TreeWatcher) Start(ctx context.Context) error {
	slog.Info("Watching source tree", "root", w.root, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

func (w *TreeWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// A new directory joins the watch set so changes inside it surface
	if event.Op&fsnotify.Create != 0 {
		if err := w.maybeAddCreatedDir(event.Name); err != nil {
			slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, event.Name)
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *TreeWatcher) maybeAddCreatedDir(p string) error {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return nil // gone already, or a plain file
	}
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return err
	}
	if w.shouldAdd != nil && !w.shouldAdd(filepath.ToSlash(rel)) {
		return nil
	}
	return w.addTree(p)
}

// flush delivers the pending batch to the change callback
func (w *TreeWatcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.timer = nil
	w.mu.Unlock()

	if len(batch) == 0 || w.onChange == nil {
		return
	}

	slog.Debug("Change batch ready", "count", len(batch))
	w.onChange(dedupe(batch))
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Close stops the watcher and releases resources
func (w *TreeWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	return w.watcher.Close()
}

// Watched returns the directories currently under watch
func (w *TreeWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.watched))
	for dir := range w.watched {
		dirs = append(dirs, dir)
	}
	return dirs
}
