package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxyrouter.yaml")
	if err := os.WriteFile(path, []byte("budget:\n  daily_limit: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var got *Config
	w := NewWatcher(path, 0, func(cfg *Config) { got = cfg }, nil)

	if w.Reload() {
		t.Error("Reload() ran callback for unchanged content")
	}

	if err := os.WriteFile(path, []byte("budget:\n  daily_limit: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if !w.Reload() {
		t.Fatal("Reload() ignored changed content")
	}
	if got == nil || got.Budget.DailyLimit != 2 {
		t.Errorf("callback config = %+v", got)
	}

	// Invalid content is rejected and does not advance the fingerprint.
	if err := os.WriteFile(path, []byte("budget:\n  daily_limit: -3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if w.Reload() {
		t.Error("Reload() accepted invalid config")
	}
	if got.Budget.DailyLimit != 2 {
		t.Error("callback ran for invalid config")
	}
}

func TestWatcher_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxyrouter.yaml")
	if err := os.WriteFile(path, []byte("budget:\n  daily_limit: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w := NewWatcher(path, 20*time.Millisecond, func(*Config) { reloads.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("budget:\n  daily_limit: 4\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() != 1 {
		t.Errorf("reloads = %d, want 1", reloads.Load())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
