// Package objectstore abstracts the versioned object store holding
// configuration documents. Callers only need read-by-key; durability and
// versioning are the store's problem.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no object exists under the given key.
var ErrNotFound = errors.New("object not found")

// Store reads objects by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// FSStore serves objects from a directory tree, mapping keys like
// "config/workflows.json" to files below the root.
type FSStore struct {
	root string
}

// NewFSStore creates an FSStore rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("object store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("object store root %s is not a directory", root)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return nil, fmt.Errorf("invalid object key %q", key)
	}

	data, err := os.ReadFile(filepath.Join(s.root, cleaned))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return data, nil
}
