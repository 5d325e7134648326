package credentials

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"machinaos/proxyrouter/pkg/providers"
)

// FileStore loads credentials from a YAML file mapping provider names to
// credentials:
//
//	brightdata:
//	  username: brd-customer-c1-zone-res
//	  password: s3cret
//
// The file must not be readable by group or others (0600 or 0400).
// Watch reloads the file when it changes.
type FileStore struct {
	path string

	mu    sync.RWMutex
	creds map[string]providers.Credentials

	// onReload is called after every successful reload.
	onReload func()
}

// NewFileStore reads the credentials file.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// OnReload registers a callback run after each successful reload, e.g. to
// invalidate a CachedStore in front of this store.
func (s *FileStore) OnReload(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

// GetProviderCredentials implements Store.
func (s *FileStore) GetProviderCredentials(_ context.Context, name string) (*providers.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Reload re-reads the file. On error the previous credentials are kept.
func (s *FileStore) Reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat credentials file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("credentials path is not a regular file: %s", s.path)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", s.path, mode)
	}

	// #nosec G304 - path comes from operator configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	// Writers truncate before writing; skip the transient empty state.
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("credentials file %s is empty", s.path)
	}

	creds := make(map[string]providers.Credentials)
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("failed to parse credentials file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.creds = creds
	onReload := s.onReload
	s.mu.Unlock()

	if onReload != nil {
		onReload()
	}
	return nil
}

// Watch reloads the file on change until ctx is cancelled. The parent
// directory is watched so editors that replace the file are handled.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	logger := slog.Default().With("component", "credentials.file")
	logger.Info("watching credentials file", "path", s.path)

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				logger.Error("failed to reload credentials file", "error", err)
				continue
			}
			logger.Info("credentials file reloaded", "op", event.Op.String())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("file watcher error", "error", err)
		}
	}
}
