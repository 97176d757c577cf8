// Package repoconfig resolves per-repository workflow mappings from a
// versioned object store. The parsed document is cached in memory with a TTL
// that bounds staleness against read cost.
package repoconfig

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/folio-org/eureka-ci-app/internal/objectstore"
)

// ErrNotFound means the repository matches no configured pattern. The
// repository is not onboarded; callers must not treat this as a failure.
var ErrNotFound = errors.New("no workflow mapping for repository")

// ErrUnavailable means the mapping document could not be fetched. Callers
// treat this as retryable.
var ErrUnavailable = errors.New("workflow mapping unavailable")

// Resolver loads and caches the repository-workflow mapping document.
// Safe for concurrent use; reads of a cached document are lock-cheap.
type Resolver struct {
	store  objectstore.Store
	key    string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	doc       *Document
	digest    string
	fetchedAt time.Time
}

// NewResolver creates a Resolver reading the mapping document at key.
func NewResolver(store objectstore.Store, key string, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		key:    key,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve returns the mapping entry for a repository full name.
// Returns ErrNotFound for unmatched repositories and ErrUnavailable
// (wrapped) when the store cannot be read.
func (r *Resolver) Resolve(ctx context.Context, repoFullName string) (Entry, error) {
	doc, err := r.document(ctx)
	if err != nil {
		return Entry{}, err
	}

	entry, ok := doc.Match(repoFullName)
	if !ok {
		return Entry{}, fmt.Errorf("repository %q: %w", repoFullName, ErrNotFound)
	}
	return entry, nil
}

// document returns the cached document, refreshing it when the TTL elapsed.
func (r *Resolver) document(ctx context.Context) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc != nil && r.now().Sub(r.fetchedAt) < r.ttl {
		return r.doc, nil
	}

	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		// A stale cached copy is not served: processing against an outdated
		// mapping would dispatch the wrong workflow silently. Redelivery
		// after the store recovers is the safer failure mode.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sum := blake3.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if r.digest != "" && r.digest != digest {
		r.logger.Info("workflow mapping document changed",
			"key", r.key,
			"entries", len(doc.Repositories),
			"digest", digest,
		)
	}

	r.doc = doc
	r.digest = digest
	r.fetchedAt = r.now()
	return r.doc, nil
}
