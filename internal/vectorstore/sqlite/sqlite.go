// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite stores chunk vectors in a local SQLite database using the
// sqlite-vec extension.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/docqa/internal/vectorstore"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
	vectorstore.RegisterBackend("sqlite", func(_ context.Context, cfg vectorstore.Config) (vectorstore.Store, error) {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "creating vector directory %s", cfg.Dir)
		}
		return New(filepath.Join(cfg.Dir, cfg.Collection+".vectors.db"), cfg.Dimensions)
	})
}

var _ vectorstore.Store = (*Store)(nil)

// metadata filter keys mapped to columns of chunk_metadata.
var filterColumns = map[string]string{
	vectorstore.KeyText:         "text",
	vectorstore.KeyDocumentHash: "pdf_hash",
	vectorstore.KeyChunkID:      "chunk_id",
	vectorstore.KeyPage:         "page",
}

// Store implements vectorstore.Store backed by SQLite with sqlite-vec.
type Store struct {
	db         *sql.DB
	dimensions int
}

// New opens (or creates) a SQLite database at dbPath and initialises the
// vec0 virtual table and companion metadata table.
func New(dbPath string, dimensions int) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "pinging sqlite db")
	}

	if err := migrate(db, dimensions); err != nil {
		_ = db.Close()
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorCollectionFailure, "migrating vector tables")
	}

	return &Store{db: db, dimensions: dimensions}, nil
}

func migrate(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating vectors virtual table: %w", err)
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS chunk_metadata (
	id       TEXT PRIMARY KEY,
	pdf_hash TEXT NOT NULL,
	chunk_id INTEGER NOT NULL,
	page     INTEGER NOT NULL,
	text     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunk_metadata_pdf_hash ON chunk_metadata(pdf_hash);`
	if _, err := db.Exec(metaDDL); err != nil {
		return fmt.Errorf("creating chunk_metadata table: %w", err)
	}

	return nil
}

// Upsert replaces any existing rows for the record IDs in one transaction.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if err := vectorstore.CheckRecords(records, s.dimensions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dqerr.Wrapf(err, dqerr.CodeVectorUpsertFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		blob, err := sqlite_vec.SerializeFloat32(r.Vector)
		if err != nil {
			return dqerr.Wrapf(err, dqerr.CodeVectorUpsertFailure, "serializing embedding %s", r.ID)
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, r.ID); err != nil {
			return dqerr.Wrapf(err, dqerr.CodeVectorUpsertFailure, "deleting existing vector %s", r.ID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, r.ID, blob); err != nil {
			return dqerr.Wrapf(err, dqerr.CodeVectorUpsertFailure, "inserting vector %s", r.ID)
		}

		const metaQ = `INSERT INTO chunk_metadata(id, pdf_hash, chunk_id, page, text) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET pdf_hash = excluded.pdf_hash, chunk_id = excluded.chunk_id,
	page = excluded.page, text = excluded.text`
		m := r.Metadata
		if _, err := tx.ExecContext(ctx, metaQ, r.ID, m.DocumentHash, m.ChunkID, m.Page, m.Text); err != nil {
			return dqerr.Wrapf(err, dqerr.CodeVectorUpsertFailure, "upserting chunk metadata %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return dqerr.Wrapf(err, dqerr.CodeVectorUpsertFailure, "committing vector upsert")
	}
	return nil
}

// Query runs a KNN search on the vec0 index when unfiltered. Filtered
// queries scan the matching metadata rows and rank them with
// vec_distance_cosine. Scores are 1 - cosine distance.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorQueryFailure, "serializing query vector")
	}

	var (
		q     string
		qargs []any
	)
	if where == "" {
		q = `SELECT v.id, v.distance, COALESCE(m.text, ''), COALESCE(m.pdf_hash, ''),
	COALESCE(m.chunk_id, 0), COALESCE(m.page, 0)
FROM vectors v
LEFT JOIN chunk_metadata m ON m.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`
		qargs = []any{blob, topK}
	} else {
		q = `SELECT m.id, vec_distance_cosine(v.embedding, ?) AS distance, m.text, m.pdf_hash, m.chunk_id, m.page
FROM chunk_metadata m
JOIN vectors v ON v.id = m.id
WHERE ` + where + `
ORDER BY distance, m.id
LIMIT ?`
		qargs = append(append([]any{blob}, args...), topK)
	}

	rows, err := s.db.QueryContext(ctx, q, qargs...)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorQueryFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var matches []vectorstore.Match
	for rows.Next() {
		var (
			m        vectorstore.Match
			distance float64
		)
		if err := rows.Scan(&m.ID, &distance, &m.Metadata.Text, &m.Metadata.DocumentHash,
			&m.Metadata.ChunkID, &m.Metadata.Page); err != nil {
			return nil, dqerr.Wrapf(err, dqerr.CodeVectorQueryFailure, "scanning vector result")
		}
		m.Score = 1 - distance
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeVectorQueryFailure, "iterating vector results")
	}

	return matches, nil
}

func (s *Store) Exists(ctx context.Context, filter vectorstore.Filter) (bool, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return false, err
	}
	q := `SELECT EXISTS(SELECT 1 FROM chunk_metadata m`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += `)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, dqerr.Wrapf(err, dqerr.CodeVectorQueryFailure, "checking for vectors")
	}
	return exists, nil
}

func (s *Store) Count(ctx context.Context, filter vectorstore.Filter) (int, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return 0, err
	}
	q := `SELECT COUNT(*) FROM chunk_metadata m`
	if where != "" {
		q += ` WHERE ` + where
	}

	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, dqerr.Wrapf(err, dqerr.CodeVectorQueryFailure, "counting vectors")
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func whereClause(filter vectorstore.Filter) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for _, key := range sortedKeys(filter) {
		conds = append(conds, "m."+filterColumns[key]+" = ?")
		args = append(args, filter[key])
	}
	return strings.Join(conds, " AND "), args, nil
}

func sortedKeys(f vectorstore.Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
