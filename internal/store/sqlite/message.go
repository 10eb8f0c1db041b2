// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

type messageStore struct {
	db *sql.DB
}

func (m *messageStore) Append(ctx context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := m.db.ExecContext(ctx, q,
		msg.ID,
		msg.SessionID,
		string(msg.Role),
		msg.Content,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return dqerr.New(dqerr.CodeStoreSessionGetNotFound, "session "+msg.SessionID+" not found", dqerr.FieldSessionID(msg.SessionID))
		}
		return dqerr.Wrap(err, dqerr.CodeStoreDatabaseFailure, "appending message "+msg.ID, dqerr.FieldSessionID(msg.SessionID))
	}
	return nil
}

func (m *messageStore) List(ctx context.Context, sessionID string, opts store.ListOpts) ([]*store.Message, error) {
	// Sub-select the N most recent, then re-order chronologically.
	const q = `SELECT id, session_id, role, content, created_at
FROM (
	SELECT rowid, id, session_id, role, content, created_at
	FROM messages WHERE session_id = ?
	ORDER BY rowid DESC LIMIT ? OFFSET ?
) ORDER BY rowid ASC`

	rows, err := m.db.QueryContext(ctx, q, sessionID, opts.EffectiveLimit(), opts.Offset)
	if err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeStoreDatabaseFailure, "listing messages", dqerr.FieldSessionID(sessionID))
	}
	defer func() { _ = rows.Close() }()

	var msgs []*store.Message
	for rows.Next() {
		var (
			msg       store.Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "scanning message row")
		}
		msg.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "iterating message rows")
	}
	return msgs, nil
}
