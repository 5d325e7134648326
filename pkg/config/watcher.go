package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/xxh3"
)

// DefaultDebounceInterval coalesces bursts of file events into one reload.
const DefaultDebounceInterval = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes. The parent
// directory is watched so editors that replace the file are handled.
// Events that leave the file content unchanged are ignored.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config)
	logger   *slog.Logger

	// load overrides LoadConfigWithEnvOverrides in tests.
	load func(string) (*Config, error)

	mu   sync.Mutex
	hash xxh3.Uint128
}

// NewWatcher creates a watcher for path. onReload receives every
// successfully loaded and validated configuration whose content differs
// from the previous one. Invalid files are logged and skipped.
func NewWatcher(path string, debounce time.Duration, onReload func(*Config), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onReload: onReload,
		logger:   logger.With("component", "config.watcher"),
		load:     LoadConfigWithEnvOverrides,
	}
	if data, err := os.ReadFile(w.path); err == nil {
		w.hash = xxh3.Hash128(data)
	}
	return w
}

// Watch blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("watching configuration file",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds(),
	)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}

		case <-fire:
			w.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Reload loads the file now and invokes the callback if its content
// changed since the last successful reload. It reports whether the
// callback ran.
func (w *Watcher) Reload() bool {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error("failed to read configuration file", "path", w.path, "error", err)
		return false
	}
	sum := xxh3.Hash128(data)

	w.mu.Lock()
	unchanged := sum == w.hash
	w.mu.Unlock()
	if unchanged {
		w.logger.Debug("configuration file unchanged", "path", w.path)
		return false
	}

	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Error("configuration reload rejected", "path", w.path, "error", err)
		return false
	}

	w.mu.Lock()
	w.hash = sum
	w.mu.Unlock()

	w.logger.Info("configuration file reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return true
}
