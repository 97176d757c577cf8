// Package state persists the check-run registry keyed by delivery id and
// pull request number. The registry is what makes redelivered webhooks
// idempotent: a redelivery finds the check run it already created instead of
// creating another.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CheckState mirrors the lifecycle of a check run on the platform.
type CheckState string

const (
	StateQueued     CheckState = "queued"
	StateInProgress CheckState = "in_progress"
	StateCompleted  CheckState = "completed"
	StateErrored    CheckState = "errored"
)

// CheckRunRecord is one check run created for a (delivery, pull request)
// pair.
type CheckRunRecord struct {
	DeliveryID string
	PRNumber   int
	Repo       string
	HeadSHA    string
	CheckRunID int64
	State      CheckState
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

var ErrNotFound = errors.New("check run record not found")

// lookupCacheTTL bounds how long a cached record can serve lookups. The PID
// lock guarantees a single writer, so the cache only needs to age out, not
// synchronize.
const lookupCacheTTL = 30 * time.Second

type cacheKey struct {
	deliveryID string
	prNumber   int
}

type cacheEntry struct {
	rec     CheckRunRecord
	expires time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		now:   time.Now,
		cache: make(map[cacheKey]cacheEntry),
	}
}

func (s *Store) cacheGet(deliveryID string, prNumber int) (*CheckRunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[cacheKey{deliveryID, prNumber}]
	if !ok || s.now().After(entry.expires) {
		return nil, false
	}
	rec := entry.rec
	return &rec, true
}

func (s *Store) cachePut(rec CheckRunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKey{rec.DeliveryID, rec.PRNumber}] = cacheEntry{
		rec:     rec,
		expires: s.now().Add(lookupCacheTTL),
	}
}

func (s *Store) cacheDrop(deliveryID string, prNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, cacheKey{deliveryID, prNumber})
}

// RecordCreated saves a freshly created check run. Called immediately after
// the platform call succeeds so a crash between creation and dispatch still
// leaves the id recoverable.
func (s *Store) RecordCreated(ctx context.Context, rec CheckRunRecord) error {
	if rec.DeliveryID == "" {
		return fmt.Errorf("deliveryID is empty")
	}
	if rec.CheckRunID == 0 {
		return fmt.Errorf("checkRunID is zero")
	}

	state := rec.State
	if state == "" {
		state = StateQueued
	}
	now := s.now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO check_runs(delivery_id, pr_number, repo, head_sha, check_run_id, state, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, rec.DeliveryID, rec.PRNumber, rec.Repo, rec.HeadSHA, rec.CheckRunID, state, now)
	if err != nil {
		return fmt.Errorf("record check run: %w", err)
	}
	s.cacheDrop(rec.DeliveryID, rec.PRNumber)
	return nil
}

// Lookup returns the record for a (delivery, pull request) pair, or
// ErrNotFound.
func (s *Store) Lookup(ctx context.Context, deliveryID string, prNumber int) (*CheckRunRecord, error) {
	if rec, ok := s.cacheGet(deliveryID, prNumber); ok {
		return rec, nil
	}

	row := s.db.QueryRowContext(ctx, `
SELECT delivery_id, pr_number, repo, head_sha, check_run_id, state, created_at, updated_at
FROM check_runs
WHERE delivery_id = ? AND pr_number = ?;
`, deliveryID, prNumber)

	var (
		rec        CheckRunRecord
		stateS     string
		createdAtS string
		updatedAtS sql.NullString
	)
	err := row.Scan(&rec.DeliveryID, &rec.PRNumber, &rec.Repo, &rec.HeadSHA, &rec.CheckRunID, &stateS, &createdAtS, &updatedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check run for delivery %s pr %d: %w", deliveryID, prNumber, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup check run: %w", err)
	}

	rec.State = CheckState(stateS)
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		rec.CreatedAt = t
	}
	if updatedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, updatedAtS.String); err == nil {
			rec.UpdatedAt = &t
		}
	}
	s.cachePut(rec)
	return &rec, nil
}

// UpdateState transitions a record to a new state.
func (s *Store) UpdateState(ctx context.Context, deliveryID string, prNumber int, state CheckState) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE check_runs
SET state = ?, updated_at = ?
WHERE delivery_id = ? AND pr_number = ?;
`, state, now, deliveryID, prNumber)
	if err != nil {
		return fmt.Errorf("update check run state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("check run for delivery %s pr %d: %w", deliveryID, prNumber, ErrNotFound)
	}
	s.cacheDrop(deliveryID, prNumber)
	return nil
}

// ListByDelivery returns all records for a delivery, ordered by pull request
// number. Used by the operator API.
func (s *Store) ListByDelivery(ctx context.Context, deliveryID string) ([]CheckRunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT delivery_id, pr_number, repo, head_sha, check_run_id, state, created_at, updated_at
FROM check_runs
WHERE delivery_id = ?
ORDER BY pr_number ASC;
`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list check runs: %w", err)
	}
	defer rows.Close()

	var out []CheckRunRecord
	for rows.Next() {
		var (
			rec        CheckRunRecord
			stateS     string
			createdAtS string
			updatedAtS sql.NullString
		)
		if err := rows.Scan(&rec.DeliveryID, &rec.PRNumber, &rec.Repo, &rec.HeadSHA, &rec.CheckRunID, &stateS, &createdAtS, &updatedAtS); err != nil {
			return nil, fmt.Errorf("scan check run: %w", err)
		}
		rec.State = CheckState(stateS)
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			rec.CreatedAt = t
		}
		if updatedAtS.Valid {
			if t, err := time.Parse(time.RFC3339Nano, updatedAtS.String); err == nil {
				rec.UpdatedAt = &t
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list check runs: %w", err)
	}
	return out, nil
}
