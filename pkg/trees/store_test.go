package trees

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer store.Close()

	tree := buildTree(t)
	tree.StartImmediately("R")
	tree.StartImmediately("A")

	saved := &Snapshot{
		Trees:      map[string]TreeSnapshot{"R": tree.Snapshot()},
		NodeToTree: map[string]string{"R": "R", "A": "R", "B": "R", "C": "R"},
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	treeSnap, ok := loaded.Trees["R"]
	if !ok {
		t.Fatal("tree R missing from loaded snapshot")
	}
	if len(treeSnap.Nodes) != 4 {
		t.Errorf("loaded %d nodes, want 4", len(treeSnap.Nodes))
	}
	if len(treeSnap.Queue) != 1 || treeSnap.Queue[0] != "A" {
		t.Errorf("loaded queue = %v, want [A]", treeSnap.Queue)
	}
	if loaded.NodeToTree["B"] != "R" {
		t.Errorf("NodeToTree[B] = %q, want R", loaded.NodeToTree["B"])
	}

	restored := RestoreTree(treeSnap)
	node, _ := restored.Node("R")
	if node.State != StateInProgress {
		t.Errorf("R state = %q after disk round trip", node.State)
	}
	if node.Incoming.Text != "root" {
		t.Errorf("R incoming text = %q", node.Incoming.Text)
	}
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap == nil || len(snap.Trees) != 0 || snap.NodeToTree == nil {
		t.Errorf("Load on missing file = %+v, want empty snapshot", snap)
	}
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Load(); err == nil {
		t.Error("Load on corrupt file: error = nil")
	}
}

func TestFileStoreSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save(emptySnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}
