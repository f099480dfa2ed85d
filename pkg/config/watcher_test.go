package config

import (
	"context"
	"os"
	"testing"
	"time"
)

const watcherYAML = `
providers:
  lmstudio:
    base_url: http://localhost:1234/v1
    default_model: first-model
`

func TestWatcherReloadsOnChange(t *testing.T) {
	path := writeConfig(t, watcherYAML)
	SetConfig(nil)

	w, err := NewWatcher(path, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(cfg *Config) { reloaded <- cfg })
	}()
	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	updated := `
providers:
  lmstudio:
    base_url: http://localhost:1234/v1
    default_model: second-model
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if got := cfg.Providers["lmstudio"].DefaultModel; got != "second-model" {
			t.Errorf("DefaultModel = %q after reload", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never fired")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func TestWatcherKeepsConfigOnBrokenReload(t *testing.T) {
	path := writeConfig(t, watcherYAML)
	good, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	SetConfig(good)

	w, err := NewWatcher(path, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("providers: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	// Let the debounced reload attempt run and fail.
	time.Sleep(500 * time.Millisecond)

	if cfg := GetConfig(); cfg == nil || cfg.Providers["lmstudio"].DefaultModel != "first-model" {
		t.Error("broken reload replaced the active configuration")
	}
	w.Stop()
}
