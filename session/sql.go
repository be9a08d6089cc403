package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// sqlite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/agentrelay/core"
)

const createTranscriptsSchemaSQL = `
CREATE TABLE IF NOT EXISTS transcripts (
    id VARCHAR(255) PRIMARY KEY,
    session_id VARCHAR(255) NOT NULL,
    state VARCHAR(50) NOT NULL,
    entry VARCHAR(255),
    active_agent VARCHAR(255),
    messages_json TEXT NOT NULL,
    transitions_json TEXT NOT NULL,
    result_json TEXT,
    error_message TEXT,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
)`

const createTranscriptsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, started_at)`

const upsertTranscriptSQL = `
INSERT INTO transcripts (id, session_id, state, entry, active_agent, messages_json,
    transitions_json, result_json, error_message, started_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    session_id = excluded.session_id,
    state = excluded.state,
    entry = excluded.entry,
    active_agent = excluded.active_agent,
    messages_json = excluded.messages_json,
    transitions_json = excluded.transitions_json,
    result_json = excluded.result_json,
    error_message = excluded.error_message,
    started_at = excluded.started_at,
    ended_at = excluded.ended_at`

const selectTranscriptSQL = `
SELECT id, session_id, state, entry, active_agent, messages_json, transitions_json,
    result_json, error_message, started_at, ended_at
FROM transcripts`

// SQLStore implements Store on a SQL database. The schema is written for
// sqlite; concurrency is handled by database-level locking.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a sqlite database at path and returns a
// store on it. Use ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	// Every sqlite connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	s, err := NewSQLStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore creates a store on db and initializes the schema.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("session: database connection is required")
	}
	s := &SQLStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("session: failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range []string{createTranscriptsSchemaSQL, createTranscriptsIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

// Save upserts t.
func (s *SQLStore) Save(ctx context.Context, t Transcript) error {
	if t.ID == "" {
		return fmt.Errorf("session: transcript id is required")
	}
	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("session: encode messages: %w", err)
	}
	transitions, err := json.Marshal(t.Transitions)
	if err != nil {
		return fmt.Errorf("session: encode transitions: %w", err)
	}
	var result sql.NullString
	if t.Result != nil {
		raw, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("session: encode result: %w", err)
		}
		result = sql.NullString{String: string(raw), Valid: true}
	}
	var ended sql.NullTime
	if !t.EndedAt.IsZero() {
		ended = sql.NullTime{Time: t.EndedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, upsertTranscriptSQL,
		t.ID, t.SessionID, t.State, t.Entry, t.ActiveAgent, string(messages),
		string(transitions), result, t.Error, t.StartedAt, ended)
	if err != nil {
		return fmt.Errorf("session: save transcript %s: %w", t.ID, err)
	}
	return nil
}

// Get returns the transcript with id.
func (s *SQLStore) Get(ctx context.Context, id string) (Transcript, error) {
	row := s.db.QueryRowContext(ctx, selectTranscriptSQL+" WHERE id = ?", id)
	t, err := scanTranscript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

// List returns the transcripts of sessionID ordered by start time.
func (s *SQLStore) List(ctx context.Context, sessionID string) ([]Transcript, error) {
	rows, err := s.db.QueryContext(ctx, selectTranscriptSQL+" WHERE session_id = ? ORDER BY started_at", sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes the transcript with id.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM transcripts WHERE id = ?", id); err != nil {
		return fmt.Errorf("session: delete transcript %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranscript(sc scanner) (Transcript, error) {
	var (
		t                     Transcript
		entry, active, errMsg sql.NullString
		messages, transitions string
		result                sql.NullString
		ended                 sql.NullTime
	)
	if err := sc.Scan(&t.ID, &t.SessionID, &t.State, &entry, &active, &messages,
		&transitions, &result, &errMsg, &t.StartedAt, &ended); err != nil {
		return Transcript{}, err
	}
	t.Entry = entry.String
	t.ActiveAgent = active.String
	t.Error = errMsg.String
	t.EndedAt = ended.Time

	if err := json.Unmarshal([]byte(messages), &t.Messages); err != nil {
		return Transcript{}, fmt.Errorf("session: decode messages: %w", err)
	}
	if err := json.Unmarshal([]byte(transitions), &t.Transitions); err != nil {
		return Transcript{}, fmt.Errorf("session: decode transitions: %w", err)
	}
	if result.Valid {
		var r core.Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return Transcript{}, fmt.Errorf("session: decode result: %w", err)
		}
		t.Result = &r
	}
	return t, nil
}
