package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// reloadDebounce coalesces the burst of events an editor produces on save.
var reloadDebounce = 200 * time.Millisecond

// RegistryWatcher reloads a block-type registry file when it changes on disk.
type RegistryWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewRegistryWatcher starts watching path. The parent directory is watched
// rather than the file so that atomic replace-on-save is picked up.
func NewRegistryWatcher(path string, logger *slog.Logger) (*RegistryWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryWatcher{path: abs, watcher: w, logger: logger}, nil
}

// Run calls onReload with each successfully reloaded registry until ctx is
// cancelled. A file that fails to parse is logged and the previous registry
// stays in effect.
func (rw *RegistryWatcher) Run(ctx context.Context, onReload func(*model.Registry)) {
	defer rw.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			reg, err := LoadRegistry(rw.path)
			if err != nil {
				rw.logger.Warn("registry reload failed, keeping previous", "path", rw.path, "error", err)
				continue
			}
			rw.logger.Info("registry reloaded", "path", rw.path, "types", len(reg.Types()))
			onReload(reg)

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("registry watcher error", "path", rw.path, "error", err)
		}
	}
}
