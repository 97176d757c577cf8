package repoconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/folio-org/eureka-ci-app/internal/log"
)

type countingObjectStore struct {
	objects map[string][]byte
	err     error
	calls   int
}

func (s *countingObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if data, ok := s.objects[key]; ok {
		return data, nil
	}
	return nil, errors.New("object not found")
}

const mappingDoc = `{
  "repositories": [
    {"pattern": "folio-org/mod-orders", "workflowRef": "eureka-ci-orders.yml", "checkRunName": "Orders Release Check"},
    {"pattern": "folio-org/*", "workflowRef": "eureka-ci-default.yml"}
  ]
}`

func newTestResolver(store *countingObjectStore, ttl time.Duration) *Resolver {
	return NewResolver(store, "config/workflows.json", ttl, log.Get())
}

func TestResolveExactMatchWinsOverWildcard(t *testing.T) {
	t.Parallel()

	store := &countingObjectStore{objects: map[string][]byte{
		"config/workflows.json": []byte(mappingDoc),
	}}
	r := newTestResolver(store, time.Minute)

	entry, err := r.Resolve(context.Background(), "folio-org/mod-orders")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.WorkflowRef != "eureka-ci-orders.yml" {
		t.Fatalf("workflowRef = %q, want eureka-ci-orders.yml", entry.WorkflowRef)
	}
	if entry.CheckRunName != "Orders Release Check" {
		t.Fatalf("checkRunName = %q", entry.CheckRunName)
	}
}

func TestResolveWildcardAppliesDefaultCheckRunName(t *testing.T) {
	t.Parallel()

	store := &countingObjectStore{objects: map[string][]byte{
		"config/workflows.json": []byte(mappingDoc),
	}}
	r := newTestResolver(store, time.Minute)

	entry, err := r.Resolve(context.Background(), "folio-org/mod-users")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.WorkflowRef != "eureka-ci-default.yml" {
		t.Fatalf("workflowRef = %q", entry.WorkflowRef)
	}
	if entry.CheckRunName != DefaultCheckRunName {
		t.Fatalf("checkRunName = %q, want default", entry.CheckRunName)
	}
}

func TestResolveUnmatchedRepository(t *testing.T) {
	t.Parallel()

	store := &countingObjectStore{objects: map[string][]byte{
		"config/workflows.json": []byte(mappingDoc),
	}}
	r := newTestResolver(store, time.Minute)

	_, err := r.Resolve(context.Background(), "other-org/repo")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	t.Parallel()

	store := &countingObjectStore{objects: map[string][]byte{
		"config/workflows.json": []byte(mappingDoc),
	}}
	r := newTestResolver(store, time.Minute)

	for range 3 {
		if _, err := r.Resolve(context.Background(), "folio-org/mod-users"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	t.Parallel()

	store := &countingObjectStore{objects: map[string][]byte{
		"config/workflows.json": []byte(mappingDoc),
	}}
	r := newTestResolver(store, time.Minute)

	current := time.Now()
	r.now = func() time.Time { return current }

	if _, err := r.Resolve(context.Background(), "folio-org/mod-users"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, err := r.Resolve(context.Background(), "folio-org/mod-users"); err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("store calls = %d, want 2", store.calls)
	}
}

func TestResolveStoreFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	store := &countingObjectStore{err: errors.New("connection refused")}
	r := newTestResolver(store, time.Minute)

	_, err := r.Resolve(context.Background(), "folio-org/mod-users")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestParseDocumentValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
	}{
		{"missing pattern", `{"repositories": [{"workflowRef": "a.yml"}]}`},
		{"missing workflowRef", `{"repositories": [{"pattern": "org/repo"}]}`},
		{"pattern without owner", `{"repositories": [{"pattern": "repo", "workflowRef": "a.yml"}]}`},
		{"unknown field", `{"repositories": [{"pattern": "org/repo", "workflowRef": "a.yml", "extra": true}]}`},
		{"not json", `repositories:`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseDocument([]byte(tc.doc)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}
