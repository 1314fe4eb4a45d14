// Package index persists calibrations, processed frames and key transitions in SQLite.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS calibrations (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL DEFAULT '',
	anchor_x        INTEGER NOT NULL,
	anchor_y        INTEGER NOT NULL,
	template_width  INTEGER NOT NULL,
	template_height INTEGER NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS calibration_keys (
	calibration_id TEXT NOT NULL REFERENCES calibrations(id) ON DELETE CASCADE,
	semitone       INTEGER NOT NULL,
	x              INTEGER NOT NULL,
	y              INTEGER NOT NULL,
	r              INTEGER NOT NULL,
	g              INTEGER NOT NULL,
	b              INTEGER NOT NULL,
	accidental     INTEGER NOT NULL DEFAULT 0,
	matched        INTEGER NOT NULL DEFAULT 0,
	UNIQUE(calibration_id, semitone)
);

CREATE TABLE IF NOT EXISTS frames (
	name         TEXT PRIMARY KEY,
	checksum     TEXT NOT NULL DEFAULT '',
	transitions  INTEGER NOT NULL DEFAULT 0,
	processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS key_events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	calibration_id TEXT NOT NULL DEFAULT '',
	frame          TEXT NOT NULL DEFAULT '',
	code           INTEGER NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	pressed        INTEGER NOT NULL,
	distance       INTEGER NOT NULL DEFAULT 0,
	at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_key_events_code ON key_events(code);
CREATE INDEX IF NOT EXISTS idx_calibrations_created ON calibrations(created_at);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
