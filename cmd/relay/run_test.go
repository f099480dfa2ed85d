package main

import (
	"path/filepath"
	"testing"

	"lumen-hq/relay/pkg/config"
)

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	store, err := openStore(config.PersistenceConfig{
		Backend: "file",
		Path:    filepath.Join(dir, "snap.json"),
	})
	if err != nil {
		t.Fatalf("file backend: %v", err)
	}
	if store == nil {
		t.Fatal("file backend returned nil store")
	}
	store.Close()

	store, err = openStore(config.PersistenceConfig{Backend: "none"})
	if err != nil || store != nil {
		t.Errorf("none backend = %v, %v", store, err)
	}

	if _, err := openStore(config.PersistenceConfig{Backend: "redis"}); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestBuildLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := buildLogger(config.LoggingConfig{Level: level, Format: "json"})
		if logger == nil {
			t.Errorf("buildLogger(%s) = nil", level)
		}
	}
	if logger := buildLogger(config.LoggingConfig{Format: "text"}); logger == nil {
		t.Error("text handler = nil")
	}
}
