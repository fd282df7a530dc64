package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tripmate-ai/tripmate/core"
)

// sqlStore implements the SessionStore contract on top of database/sql.
// Sessions hold their state as one JSON document; events are appended as
// JSON rows ordered by an autoincrementing sequence. The SQLite and Postgres
// stores differ only in driver, schema DDL and placeholder style.
type sqlStore struct {
	db       *sql.DB
	bindVars bool // true => rewrite ? placeholders to $1..$n
}

func (s *sqlStore) rebind(query string) string {
	if !s.bindVars {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Get loads a session with its full event history, creating it lazily when it
// does not exist yet.
func (s *sqlStore) Get(sessionID string) (*core.Session, error) {
	var stateJSON string
	var created, updated time.Time

	err := s.db.QueryRow(
		s.rebind(`SELECT state, created, updated FROM sessions WHERE id = ?`),
		sessionID,
	).Scan(&stateJSON, &created, &updated)
	if err == sql.ErrNoRows {
		return s.Create(sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess := core.NewSession(sessionID)
	sess.Created = created
	sess.Updated = updated
	if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}

	rows, err := s.db.Query(
		s.rebind(`SELECT payload FROM events WHERE session_id = ? ORDER BY seq`),
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev core.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return sess, nil
}

// Create inserts an empty session row when absent and returns the session.
func (s *sqlStore) Create(sessionID string) (*core.Session, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		s.rebind(`INSERT INTO sessions (id, state, created, updated) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
		sessionID, "{}", now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.Get(sessionID)
}

// AppendEvent serializes the event and appends it to the session's history.
func (s *sqlStore) AppendEvent(sessionID string, ev core.Event) error {
	if err := s.ensure(sessionID); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.db.Exec(
		s.rebind(`INSERT INTO events (id, session_id, payload, created) VALUES (?, ?, ?, ?)`),
		ev.ID, sessionID, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.Exec(
		s.rebind(`UPDATE sessions SET updated = ? WHERE id = ?`),
		time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ApplyDelta merges the delta into the stored state document. Last writer
// wins; one session is driven by one user at a time.
func (s *sqlStore) ApplyDelta(sessionID string, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}
	if err := s.ensure(sessionID); err != nil {
		return err
	}

	var stateJSON string
	err := s.db.QueryRow(
		s.rebind(`SELECT state FROM sessions WHERE id = ?`),
		sessionID,
	).Scan(&stateJSON)
	if err != nil {
		return fmt.Errorf("load session state: %w", err)
	}

	state := map[string]any{}
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	for k, v := range delta {
		state[k] = v
	}

	merged, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	_, err = s.db.Exec(
		s.rebind(`UPDATE sessions SET state = ?, updated = ? WHERE id = ?`),
		string(merged), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("store session state: %w", err)
	}
	return nil
}

// ensure lazily creates the session row so appends to fresh ids succeed.
func (s *sqlStore) ensure(sessionID string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		s.rebind(`INSERT INTO sessions (id, state, created, updated) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
		sessionID, "{}", now, now,
	)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}
