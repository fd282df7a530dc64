package session

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id      TEXT PRIMARY KEY,
	state   JSONB NOT NULL DEFAULT '{}',
	created TIMESTAMPTZ NOT NULL,
	updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	payload    JSONB NOT NULL,
	created    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
`

// PostgresStore persists sessions in a networked Postgres database, for
// deployments where conversations must be shared across hosts or survive
// machine loss.
type PostgresStore struct {
	sqlStore
}

// OpenPostgres connects using a pgx connection string and ensures the schema
// exists. The connection is verified with a ping before use.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{sqlStore{db: db, bindVars: true}}, nil
}

// Close releases the underlying database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for maintenance tooling.
func (s *PostgresStore) DB() *sql.DB { return s.db }
