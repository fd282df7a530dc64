package session

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id      TEXT PRIMARY KEY,
	state   TEXT NOT NULL DEFAULT '{}',
	created TIMESTAMP NOT NULL,
	updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	payload    TEXT NOT NULL,
	created    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
`

// SQLiteStore persists sessions in an embedded SQLite database file. Suited
// for single-user local deployments where history should survive restarts.
type SQLiteStore struct {
	sqlStore
}

// OpenSQLite opens (creating if needed) the database at dsn, switches it to
// WAL mode and ensures the schema exists.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlStore{db: db}}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for maintenance tooling.
func (s *SQLiteStore) DB() *sql.DB { return s.db }
