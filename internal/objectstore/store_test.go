package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStoreGet(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "config", "workflows.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write object: %v", err)
	}

	store, err := NewFSStore(root)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	data, err := store.Get(context.Background(), "config/workflows.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{}` {
		t.Fatalf("data = %q", data)
	}
}

func TestFSStoreGetMissing(t *testing.T) {
	t.Parallel()

	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	_, err = store.Get(context.Background(), "config/absent.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	for _, key := range []string{"../secret", "/etc/passwd", "."} {
		if _, err := store.Get(context.Background(), key); err == nil {
			t.Errorf("key %q: expected error", key)
		}
	}
}
