// Package queue implements the durable at-least-once delivery queue backing
// webhook processing. Messages are leased rather than removed on dequeue; a
// message whose lease expires without an ack becomes visible again.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Queue struct {
	db                *sql.DB
	visibilityTimeout time.Duration
	now               func() time.Time
}

func New(db *sql.DB, visibilityTimeout time.Duration) *Queue {
	return &Queue{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
	}
}

// Enqueue persists a delivery and returns the message id. The write must
// complete before the webhook response is sent, so failures here surface to
// the caller instead of being swallowed.
func (q *Queue) Enqueue(ctx context.Context, deliveryID, eventType string, payload []byte, receivedAt time.Time) (string, error) {
	if deliveryID == "" {
		return "", fmt.Errorf("deliveryID is empty")
	}
	if eventType == "" {
		return "", fmt.Errorf("eventType is empty")
	}

	id := uuid.NewString()
	now := q.now().UTC().Format(time.RFC3339Nano)

	_, err := q.db.ExecContext(ctx, `
INSERT INTO event_queue(id, delivery_id, event_type, payload, received_at, delivery_count, leased_until, enqueued_at)
VALUES(?, ?, ?, ?, ?, 0, NULL, ?);
`, id, deliveryID, eventType, payload, receivedAt.UTC().Format(time.RFC3339Nano), now)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest visible message, leasing it for the visibility
// timeout and incrementing its delivery count. Returns (nil, nil) when no
// message is available.
func (q *Queue) Dequeue(ctx context.Context) (*Message, error) {
	now := q.now().UTC()
	nowS := now.Format(time.RFC3339Nano)
	leasedUntil := now.Add(q.visibilityTimeout).Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM event_queue
  WHERE leased_until IS NULL OR leased_until <= ?
  ORDER BY enqueued_at ASC, rowid ASC
  LIMIT 1
)
UPDATE event_queue
SET delivery_count = delivery_count + 1, leased_until = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, delivery_id, event_type, payload, received_at, delivery_count;
`, nowS, leasedUntil)

	var (
		m          Message
		receivedAt string
	)
	err := row.Scan(&m.ID, &m.DeliveryID, &m.EventType, &m.Payload, &receivedAt, &m.DeliveryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue message: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
		m.ReceivedAt = t
	}
	return &m, nil
}

// Ack removes a successfully processed message.
func (q *Queue) Ack(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM event_queue WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ack message %s: %w", id, ErrMessageNotFound)
	}
	return nil
}

// Release clears a message's lease so it is immediately visible again.
// Used on shutdown; transient failures simply let the lease expire.
func (q *Queue) Release(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE event_queue SET leased_until = NULL WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("release message: %w", err)
	}
	return nil
}

// MoveToDeadLetter removes a message from the queue and records it with the
// failure reason. Both happen in one transaction so the message is never lost
// or duplicated across the two tables.
func (q *Queue) MoveToDeadLetter(ctx context.Context, id, reason string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := q.now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
INSERT INTO dead_letter(id, delivery_id, event_type, payload, received_at, failure_reason, attempts, dead_lettered_at)
SELECT id, delivery_id, event_type, payload, received_at, ?, delivery_count, ?
FROM event_queue
WHERE id = ?;
`, reason, now, id)
	if err != nil {
		return fmt.Errorf("insert dead_letter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dead-letter message %s: %w", id, ErrMessageNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_queue WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete dead-lettered message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Requeue moves a dead-lettered message back onto the queue with a fresh
// delivery count.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := q.now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
INSERT INTO event_queue(id, delivery_id, event_type, payload, received_at, delivery_count, leased_until, enqueued_at)
SELECT id, delivery_id, event_type, payload, received_at, 0, NULL, ?
FROM dead_letter
WHERE id = ?;
`, now, id)
	if err != nil {
		return fmt.Errorf("requeue message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("requeue message %s: %w", id, ErrMessageNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letter WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete requeued message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead-lettered messages, newest first.
func (q *Queue) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT id, delivery_id, event_type, payload, received_at, failure_reason, attempts, dead_lettered_at
FROM dead_letter
ORDER BY dead_lettered_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var (
			d              DeadLetter
			receivedAt     string
			deadLetteredAt string
		)
		if err := rows.Scan(&d.ID, &d.DeliveryID, &d.EventType, &d.Payload, &receivedAt, &d.FailureReason, &d.Attempts, &deadLetteredAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
			d.ReceivedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, deadLetteredAt); err == nil {
			d.DeadLetteredAt = t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}

// Depth reports ready, in-flight, and dead-letter counts.
func (q *Queue) Depth(ctx context.Context) (Stats, error) {
	nowS := q.now().UTC().Format(time.RFC3339Nano)

	var s Stats
	err := q.db.QueryRowContext(ctx, `
SELECT
  COUNT(*) FILTER (WHERE leased_until IS NULL OR leased_until <= ?),
  COUNT(*) FILTER (WHERE leased_until IS NOT NULL AND leased_until > ?)
FROM event_queue;
`, nowS, nowS).Scan(&s.Ready, &s.InFlight)
	if err != nil {
		return Stats{}, fmt.Errorf("queue depth: %w", err)
	}

	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter;`).Scan(&s.DeadLetter); err != nil {
		return Stats{}, fmt.Errorf("dead letter depth: %w", err)
	}
	return s, nil
}
