package ingestion

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"codegraph-backend/internal/errors"
)

// WorkspaceWatcher watches the workspace tree and triggers a re-analysis
// after each settled burst of file changes. Bursts are debounced so one
// save-all or branch switch produces one batch.
type WorkspaceWatcher struct {
	root           string
	ignorePatterns []string
	debounce       time.Duration
	trigger        func()

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	logger  *zap.Logger
}

// NewWorkspaceWatcher creates a watcher over root. trigger is invoked once
// per settled burst, on the watcher goroutine.
func NewWorkspaceWatcher(root string, ignorePatterns []string, debounce time.Duration, trigger func(), logger *zap.Logger) (*WorkspaceWatcher, error) {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "create workspace watcher")
	}

	w := &WorkspaceWatcher{
		root:           root,
		ignorePatterns: ignorePatterns,
		debounce:       debounce,
		trigger:        trigger,
		watcher:        fsWatcher,
		stopCh:         make(chan struct{}),
		logger:         logger,
	}
	if err := w.watchTree(); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// watchTree registers every non-ignored directory under root. fsnotify
// watches are per-directory, so new subdirectories are added as their
// create events arrive.
func (w *WorkspaceWatcher) watchTree() error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "walk workspace")
	}
	return nil
}

func (w *WorkspaceWatcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	for _, pattern := range w.ignorePatterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (w *WorkspaceWatcher) loop() {
	var debounceTimer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			// New directories join the watch set immediately so files
			// created inside them are seen.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			w.logger.Debug("workspace change", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(w.debounce)
			} else {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(w.debounce)
			}
			timerCh = debounceTimer.C

		case <-timerCh:
			timerCh = nil
			w.logger.Info("workspace settled, triggering re-analysis")
			w.trigger()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("workspace watcher error", zap.Error(err))
		}
	}
}

// Stop halts the watcher. Safe to call once.
func (w *WorkspaceWatcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}

// TriggerFunc adapts a Runner into the watcher's trigger callback,
// swallowing errors (they are already logged and journaled as
// analysis_failed by the coordinator).
func TriggerFunc(runner *Runner, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func() {
		// The batch deadline inside ApplyBatch bounds the work; the trigger
		// itself must not cancel a long analysis mid-stream.
		if _, _, err := runner.ForceReanalysis(context.Background()); err != nil {
			logger.Warn("watch-triggered re-analysis failed", zap.Error(err))
		}
	}
}
