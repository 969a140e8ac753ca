package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	m "tessel.dev/pkg/tessel/internal/model"
)

// BuildFileWatcher reports changes to build files under a workspace.
type BuildFileWatcher interface {
	// Watch blocks until ctx is done. After each burst of build file changes settles,
	// onChange is called with the changed paths, sorted.
	Watch(ctx context.Context, root m.Path, onChange func(paths []string)) error
}

// FSNotifyWatcher implements BuildFileWatcher with fsnotify.
type FSNotifyWatcher struct {
	debounce time.Duration
}

// NewFSNotifyWatcher constructs a watcher that waits debounce after the last event
// before reporting a change.
func NewFSNotifyWatcher(debounce time.Duration) *FSNotifyWatcher {
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	return &FSNotifyWatcher{debounce: debounce}
}

// Watch registers every directory under root and waits for build file events.
func (w *FSNotifyWatcher) Watch(ctx context.Context, root m.Path, onChange func(paths []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addDirs(watcher, string(root)); err != nil {
		return err
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipWatchDir(info.Name()) {
					if err := addDirs(watcher, event.Name); err != nil {
						slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			if !IsBuildFile(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}

			slog.Debug("Build file event", "path", event.Name, "op", event.Op.String())

			pending[event.Name] = struct{}{}

			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			slog.Warn("Watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}

			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}

			sort.Strings(paths)
			clear(pending)

			onChange(paths)
		}
	}
}

func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if !entry.IsDir() {
			return nil
		}

		if path != root && skipWatchDir(entry.Name()) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}

		return nil
	})
}

// skipWatchDir excludes output symlinks and VCS metadata.
func skipWatchDir(name string) bool {
	return strings.HasPrefix(name, "bazel-") || strings.HasPrefix(name, ".")
}
