// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package vectorstore defines the vector index used for chunk retrieval and
// the backend registry that opens it.
package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// DefaultUpsertBatchSize is the number of records sent per upsert call.
const DefaultUpsertBatchSize = 100

// Metadata keys stored alongside every vector.
const (
	KeyText         = "text"
	KeyDocumentHash = "pdf_hash"
	KeyChunkID      = "chunk_id"
	KeyPage         = "page"
)

// Metadata is the payload attached to a chunk vector.
type Metadata struct {
	Text         string `json:"text"`
	DocumentHash string `json:"pdf_hash"`
	ChunkID      int    `json:"chunk_id"`
	Page         int    `json:"page"`
}

// Value returns the metadata value stored under key.
func (m Metadata) Value(key string) (any, bool) {
	switch key {
	case KeyText:
		return m.Text, true
	case KeyDocumentHash:
		return m.DocumentHash, true
	case KeyChunkID:
		return m.ChunkID, true
	case KeyPage:
		return m.Page, true
	}
	return nil, false
}

// Record is one vector with its identifier and payload.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// RecordID returns the identifier of chunk index within the document hash.
func RecordID(hash string, index int) string {
	return hash + "_" + strconv.Itoa(index)
}

// Match is a query hit. Higher scores are more similar.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Filter restricts a query to records whose metadata equals every entry.
// A nil or empty filter matches all records.
type Filter map[string]any

// DocumentFilter matches the chunks of one document.
func DocumentFilter(hash string) Filter {
	return Filter{KeyDocumentHash: hash}
}

// Matches reports whether m satisfies every entry of f.
func (f Filter) Matches(m Metadata) bool {
	for k, want := range f {
		got, ok := m.Value(k)
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Validate rejects keys that are not part of Metadata.
func (f Filter) Validate() error {
	for k := range f {
		if _, ok := (Metadata{}).Value(k); !ok {
			return dqerr.Errorf(dqerr.CodeVectorRecordInvalid, "unsupported filter key %q", k)
		}
	}
	return nil
}

// Store is a vector index holding chunk embeddings.
type Store interface {
	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to topK records nearest to vector, most similar first.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	// Exists reports whether any record satisfies filter.
	Exists(ctx context.Context, filter Filter) (bool, error)
	// Count returns the number of records satisfying filter.
	Count(ctx context.Context, filter Filter) (int, error)
	Close() error
}

// Progress is called after each uploaded batch.
type Progress func(batch, batches int)

// UpsertBatches uploads records in fixed-size batches, sequentially and
// without retry. The first failing batch aborts the upload; the returned
// error carries its 1-based number.
func UpsertBatches(ctx context.Context, s Store, records []Record, batchSize int, progress Progress) error {
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	batches := (len(records) + batchSize - 1) / batchSize
	for i := 0; i < batches; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := i * batchSize
		end := min(start+batchSize, len(records))
		if err := s.Upsert(ctx, records[start:end]); err != nil {
			return dqerr.Wrap(err, dqerr.CodeIngestUpsertFailure,
				fmt.Sprintf("uploading batch %d/%d (records %d-%d)", i+1, batches, start, end-1),
				dqerr.FieldBatch(i+1))
		}
		if progress != nil {
			progress(i+1, batches)
		}
	}
	return nil
}

// CheckRecords validates record IDs and vector dimensions before upload.
func CheckRecords(records []Record, dims int) error {
	for _, r := range records {
		if r.ID == "" {
			return dqerr.New(dqerr.CodeVectorRecordInvalid, "record id must not be empty")
		}
		if dims > 0 && len(r.Vector) != dims {
			return dqerr.Errorf(dqerr.CodeEmbeddingDimensionMismatch,
				"record %s has %d dimensions, index expects %d", r.ID, len(r.Vector), dims)
		}
	}
	return nil
}
