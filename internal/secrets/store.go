// Package secrets resolves named secrets (webhook shared secret, GitHub App
// signing key) from a backing store, with a TTL cache in front so hot paths
// do not hit the store on every request.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the store has no secret under the given name.
var ErrNotFound = errors.New("secret not found")

// Store retrieves secrets by name.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// DirStore reads secrets from files in a directory, one file per secret name.
// This is the on-host equivalent of a managed secret store: deployment mounts
// secrets into the directory, the service only ever reads them by name.
type DirStore struct {
	dir string
}

// NewDirStore creates a DirStore rooted at dir.
func NewDirStore(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path %s is not a directory", dir)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Get(_ context.Context, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid secret name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", name, err)
	}

	// Trailing newlines are an artifact of how secrets land on disk, never
	// part of the secret itself.
	return strings.TrimRight(string(data), "\r\n"), nil
}

// EnvStore resolves secrets from environment variables, mapping a name like
// "webhook_secret" to "EUREKA_CI_SECRET_WEBHOOK_SECRET".
type EnvStore struct{}

func (EnvStore) Get(_ context.Context, name string) (string, error) {
	key := "EUREKA_CI_SECRET_" + strings.ToUpper(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("secret %q ($%s): %w", name, key, ErrNotFound)
	}
	return value, nil
}
