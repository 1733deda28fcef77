// Package watch rebuilds a local package whenever its source tree changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/pkgdocs/internal/logfields"
)

// DefaultDebounce is the quiet window after the last change before a rebuild starts.
const DefaultDebounce = 2 * time.Second

// ignored directories never trigger rebuilds; target/ is written by the build itself.
var ignored = map[string]bool{"target": true, ".git": true}

// Watcher runs OnChange after bursts of file changes below Root.
type Watcher struct {
	Root     string
	Debounce time.Duration
	OnChange func(ctx context.Context)
	Logger   *slog.Logger
}

// Run watches until ctx is cancelled. OnChange calls never overlap; changes
// made while one runs schedule exactly one follow-up call.
func (w *Watcher) Run(ctx context.Context) error {
	root, err := filepath.Abs(w.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := addTree(fw, root); err != nil {
		return err
	}
	logger.Info("Watching package sources", logfields.Path(root))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if isIgnored(root, ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
					}
				}
			}
			logger.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("File watcher error", logfields.Error(err))
		case <-timer.C:
			w.OnChange(ctx)
		}
	}
}

func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && ignored[d.Name()] {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func isIgnored(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if ignored[part] {
			return true
		}
	}
	return false
}
