// Package db provides SQLite persistence for Autopilot.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema is applied on open; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS calibrated_limits (
	profile_id        TEXT PRIMARY KEY,
	session_limit_usd REAL NOT NULL,
	weekly_limit_usd  REAL NOT NULL,
	sample_count      INTEGER NOT NULL DEFAULT 0,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id               TEXT PRIMARY KEY,
	profile_id       TEXT NOT NULL,
	profile_name     TEXT NOT NULL,
	session_percent  REAL NOT NULL,
	weekly_percent   REAL NOT NULL,
	estimated        INTEGER NOT NULL,
	session_tokens   INTEGER NOT NULL DEFAULT 0,
	weekly_tokens    INTEGER NOT NULL DEFAULT 0,
	fetched_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON snapshots(fetched_at);

CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	type          TEXT NOT NULL,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	payload_json  TEXT,
	metadata_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
`

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes access per connection; a single
	// connection avoids table-lock errors under concurrent writers.
	conn.SetMaxOpenConns(1)

	db := &DB{DB: conn}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
