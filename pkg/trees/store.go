package trees

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Snapshot is the persisted form of all conversation state: every tree plus
// the node-to-root index. Task handles are never persisted.
type Snapshot struct {
	Trees      map[string]TreeSnapshot `json:"trees"`
	NodeToTree map[string]string       `json:"node_to_tree"`
}

// Store persists snapshots. Persistence is best effort: a failed save is
// logged and traffic continues.
type Store interface {
	Save(snap *Snapshot) error
	Load() (*Snapshot, error)
	Close() error
}

// FileStore keeps the snapshot as a single JSON document on disk, written
// atomically via a temp file and rename.
type FileStore struct {
	path string
}

// NewFileStore builds a store writing to path, creating parent directories
// as needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads the last snapshot. A missing file yields an empty snapshot,
// not an error.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	normalizeSnapshot(&snap)
	return &snap, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Trees:      map[string]TreeSnapshot{},
		NodeToTree: map[string]string{},
	}
}

func normalizeSnapshot(snap *Snapshot) {
	if snap.Trees == nil {
		snap.Trees = map[string]TreeSnapshot{}
	}
	if snap.NodeToTree == nil {
		snap.NodeToTree = map[string]string{}
	}
}
