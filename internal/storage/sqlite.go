package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
//
// event_queue holds webhook deliveries awaiting processing. A row is either
// available (leased_until NULL or expired) or in-flight (leased_until in the
// future). Rows are deleted on ack or moved to dead_letter.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_queue (
  id             TEXT PRIMARY KEY,
  delivery_id    TEXT NOT NULL,
  event_type     TEXT NOT NULL,
  payload        BLOB NOT NULL,
  received_at    TEXT NOT NULL,
  delivery_count INTEGER NOT NULL DEFAULT 0,
  leased_until   TEXT,
  enqueued_at    TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS dead_letter (
  id               TEXT PRIMARY KEY,
  delivery_id      TEXT NOT NULL,
  event_type       TEXT NOT NULL,
  payload          BLOB NOT NULL,
  received_at      TEXT NOT NULL,
  failure_reason   TEXT NOT NULL,
  attempts         INTEGER NOT NULL,
  dead_lettered_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS check_runs (
  delivery_id  TEXT NOT NULL,
  pr_number    INTEGER NOT NULL,
  repo         TEXT NOT NULL,
  head_sha     TEXT NOT NULL,
  check_run_id INTEGER NOT NULL,
  state        TEXT NOT NULL,
  created_at   TEXT NOT NULL,
  updated_at   TEXT,
  PRIMARY KEY (delivery_id, pr_number)
);`,
		`CREATE INDEX IF NOT EXISTS event_queue_enqueued_at_idx ON event_queue(enqueued_at);`,
		`CREATE INDEX IF NOT EXISTS event_queue_delivery_id_idx ON event_queue(delivery_id);`,
		`CREATE INDEX IF NOT EXISTS dead_letter_delivery_id_idx ON dead_letter(delivery_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
