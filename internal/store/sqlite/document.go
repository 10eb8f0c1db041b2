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

type documentStore struct {
	db *sql.DB
}

const documentColumns = `hash, name, size_bytes, pages, chunks, embedding_model, ingested_at`

func (s *documentStore) Put(ctx context.Context, doc *store.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO documents (` + documentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(hash) DO UPDATE SET name = excluded.name, size_bytes = excluded.size_bytes,
	pages = excluded.pages, chunks = excluded.chunks, embedding_model = excluded.embedding_model,
	ingested_at = excluded.ingested_at`

	_, err := s.db.ExecContext(ctx, q,
		doc.Hash,
		doc.Name,
		doc.SizeBytes,
		doc.Pages,
		doc.Chunks,
		doc.EmbeddingModel,
		formatTime(doc.IngestedAt),
	)
	if err != nil {
		return dqerr.Wrap(err, dqerr.CodeStoreDatabaseFailure, "putting document", dqerr.FieldDocumentHash(doc.Hash))
	}
	return nil
}

func (s *documentStore) Get(ctx context.Context, hash string) (*store.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE hash = ?`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dqerr.New(dqerr.CodeStoreDocumentGetNotFound, "document "+hash+" not found", dqerr.FieldDocumentHash(hash))
	}
	if err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeStoreDatabaseFailure, "getting document", dqerr.FieldDocumentHash(hash))
	}
	return doc, nil
}

// List returns documents most recently ingested first.
func (s *documentStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents ORDER BY ingested_at DESC, hash LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, opts.EffectiveLimit(), opts.Offset)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "listing documents")
	}
	defer func() { _ = rows.Close() }()

	var docs []*store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "scanning document row")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "iterating document rows")
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*store.Document, error) {
	var (
		doc        store.Document
		ingestedAt string
	)
	if err := row.Scan(
		&doc.Hash,
		&doc.Name,
		&doc.SizeBytes,
		&doc.Pages,
		&doc.Chunks,
		&doc.EmbeddingModel,
		&ingestedAt,
	); err != nil {
		return nil, err
	}
	doc.IngestedAt = parseTime(ingestedAt)
	return &doc, nil
}
