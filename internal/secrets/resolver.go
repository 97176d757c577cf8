package secrets

import (
	"context"
	"sync"
	"time"
)

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// Resolver caches secrets from an underlying Store for a bounded TTL.
// Safe for concurrent use. Lookup failures are never cached; a transient
// store outage heals on the next call.
type Resolver struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSecret
}

// NewResolver creates a caching resolver over store. A zero ttl disables
// caching entirely.
func NewResolver(store Store, ttl time.Duration) *Resolver {
	return &Resolver{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedSecret),
	}
}

// Get returns the named secret, from cache if fresh.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	if entry, ok := r.cache[name]; ok && r.now().Sub(entry.fetchedAt) < r.ttl {
		r.mu.Unlock()
		return entry.value, nil
	}
	r.mu.Unlock()

	value, err := r.store.Get(ctx, name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[name] = cachedSecret{value: value, fetchedAt: r.now()}
	r.mu.Unlock()
	return value, nil
}

// Invalidate drops a cached secret, forcing the next Get to hit the store.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}
