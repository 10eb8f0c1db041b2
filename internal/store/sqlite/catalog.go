// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite implements the catalog stores on a single SQLite database.
package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.Stores        = (*Catalog)(nil)
	_ store.DocumentStore = (*documentStore)(nil)
	_ store.SessionStore  = (*sessionStore)(nil)
	_ store.MessageStore  = (*messageStore)(nil)
)

// Catalog implements store.Stores backed by a single SQLite database.
type Catalog struct {
	db        *sql.DB
	documents *documentStore
	sessions  *sessionStore
	messages  *messageStore
}

// NewCatalog opens (or creates) a SQLite database at dbPath and
// initialises the documents, sessions, and messages tables.
func NewCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "opening catalog db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "pinging catalog db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "migrating catalog db")
	}

	return &Catalog{
		db:        db,
		documents: &documentStore{db: db},
		sessions:  &sessionStore{db: db},
		messages:  &messageStore{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	hash            TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	pages           INTEGER NOT NULL DEFAULT 0,
	chunks          INTEGER NOT NULL DEFAULT 0,
	embedding_model TEXT NOT NULL DEFAULT '',
	ingested_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	document_hash TEXT NOT NULL,
	document_name TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_document ON sessions(document_hash);

CREATE TABLE IF NOT EXISTS messages (
	rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT UNIQUE NOT NULL,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Documents returns the DocumentStore sub-store.
func (c *Catalog) Documents() store.DocumentStore { return c.documents }

// Sessions returns the SessionStore sub-store.
func (c *Catalog) Sessions() store.SessionStore { return c.sessions }

// Messages returns the MessageStore sub-store.
func (c *Catalog) Messages() store.MessageStore { return c.messages }

// Close closes the underlying database connection.
func (c *Catalog) Close() error { return c.db.Close() }

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
