// Package session persists run transcripts.
//
// A Transcript is the durable record of one orchestration run: its messages,
// transitions, terminal result or failure. Transcripts sharing a SessionID
// form a conversation that can be continued (see engine.WithHistory).
//
// Two Store implementations are provided: InMemoryStore for tests and
// ephemeral processes, and SQLStore backed by database/sql (sqlite via
// github.com/mattn/go-sqlite3).
package session
