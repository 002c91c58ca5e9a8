package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher supplements ReloadCoordinator's SIGHUP-triggered reload with
// push-based notification: editors and config-management tools often
// replace a file via rename rather than in-place write, so the watch
// target is the file's parent directory and events are filtered by
// basename, matching fsnotify's own documented recipe for watching a
// single file that may be atomically replaced. Grounded on GoBalance's
// cmd/gobalance/main.go config.NewWatcher(path, logger, callback) call
// site; the coalescing debounce follows the same shape as the teacher's
// SignalHandler debounce window in cmd/server/signal.go.
type Watcher struct {
	path      string
	basename  string
	coord     *ReloadCoordinator
	onApplied func(*Config)
	logger    *slog.Logger
	debounce  time.Duration

	fsw *fsnotify.Watcher
}

// NewWatcher opens an fsnotify watch on path's parent directory. Reload
// outcomes are applied to coord as they're observed; onApplied, if
// non-nil, is invoked with the new Config after every reload that
// actually changed something, so callers can propagate the change to
// collaborators ReloadCoordinator doesn't own itself (e.g. the backend
// roster). logger may be nil.
func NewWatcher(path string, coord *ReloadCoordinator, onApplied func(*Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:      path,
		basename:  filepath.Base(path),
		coord:     coord,
		onApplied: onApplied,
		logger:    logger,
		debounce:  250 * time.Millisecond,
		fsw:       fsw,
	}, nil
}

// Run blocks, applying a reload on every write/create/rename event
// touching the watched file, until ctx is canceled. Coalesces bursts of
// events (common with editors that write-then-rename) into a single
// reload per debounce window.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.basename {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				pending.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-fire:
			changed, err := w.coord.ReloadFromFile(w.path)
			if err != nil {
				w.logger.Error("watched reload failed", "error", err)
				continue
			}
			if changed {
				w.logger.Info("watched reload applied")
				if w.onApplied != nil {
					w.onApplied(w.coord.Current())
				}
			}
		}
	}
}
