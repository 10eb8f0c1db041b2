// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

type sessionStore struct {
	db *sql.DB
}

func (s *sessionStore) Create(ctx context.Context, session *store.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO sessions (id, document_hash, document_name, created_at) VALUES (?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.DocumentHash,
		session.DocumentName,
		formatTime(session.CreatedAt),
	)
	if err != nil {
		return dqerr.Wrap(err, dqerr.CodeStoreDatabaseFailure, "creating session", dqerr.FieldSessionID(session.ID))
	}
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT id, document_hash, document_name, created_at FROM sessions WHERE id = ?`

	var (
		sess      store.Session
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&sess.ID, &sess.DocumentHash, &sess.DocumentName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dqerr.New(dqerr.CodeStoreSessionGetNotFound, "session "+id+" not found", dqerr.FieldSessionID(id))
	}
	if err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeStoreDatabaseFailure, "getting session", dqerr.FieldSessionID(id))
	}
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

// List returns sessions newest first.
func (s *sessionStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Session, error) {
	const q = `SELECT id, document_hash, document_name, created_at
FROM sessions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, opts.EffectiveLimit(), opts.Offset)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "listing sessions")
	}
	defer func() { _ = rows.Close() }()

	var sessions []*store.Session
	for rows.Next() {
		var (
			sess      store.Session
			createdAt string
		)
		if err := rows.Scan(&sess.ID, &sess.DocumentHash, &sess.DocumentName, &createdAt); err != nil {
			return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "scanning session row")
		}
		sess.CreatedAt = parseTime(createdAt)
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "iterating session rows")
	}
	return sessions, nil
}
