// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/embedding"
	"github.com/sigil-dev/docqa/internal/store"
	"github.com/sigil-dev/docqa/internal/vectorstore"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// IngestRequest is an uploaded document.
type IngestRequest struct {
	Name string
	Data []byte
}

// IngestResult describes what Ingest did with a document.
type IngestResult struct {
	Hash    string `json:"hash"`
	Name    string `json:"name"`
	Skipped bool   `json:"skipped"`
	Pages   int    `json:"pages"`
	Chunks  int    `json:"chunks"`
}

// Ingest indexes req unless vectors for its content hash already exist.
// Concurrent ingests of the same content run one at a time so the document
// is embedded once.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := document.CheckUpload(req.Name, int64(len(req.Data)), p.opts.MaxUploadBytes); err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeIngestRequestInvalid, "rejecting upload")
	}

	hash := document.Hash(req.Data)
	log := slog.With("pdf_hash", hash, "file", req.Name)

	unlock := p.locks.lock(hash)
	defer unlock()

	exists, err := p.vectors.Exists(ctx, vectorstore.DocumentFilter(hash))
	if err != nil {
		// Record IDs are deterministic, so re-embedding overwrites.
		log.Warn("checking for existing vectors failed, ingesting anyway", "error", err)
	}
	if exists {
		log.Info("document already indexed, skipping embedding")
		return p.skipped(ctx, hash, req)
	}

	start := time.Now()
	pages, err := p.loader.Load(ctx, req.Data)
	if err != nil {
		return nil, dqerr.With(err, dqerr.FieldDocumentHash(hash))
	}

	chunks := p.splitter.SplitPages(hash, pages)
	if len(chunks) == 0 {
		return nil, dqerr.New(dqerr.CodeIngestDocumentEmpty, "document contains no extractable text",
			dqerr.FieldDocumentHash(hash), dqerr.Field("pages", len(pages)))
	}
	log.Info("document split", "pages", len(pages), "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.Batched(ctx, p.embedder, texts, p.opts.EmbedBatchSize, func(done, total int) {
		log.Debug("embedding progress", "done", done, "total", total)
	})
	if err != nil {
		return nil, dqerr.With(err, dqerr.FieldDocumentHash(hash))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:     vectorstore.RecordID(hash, c.Index),
			Vector: vectors[i],
			Metadata: vectorstore.Metadata{
				Text:         c.Text,
				DocumentHash: hash,
				ChunkID:      c.Index,
				Page:         c.Page,
			},
		}
	}
	err = vectorstore.UpsertBatches(ctx, p.vectors, records, p.opts.UpsertBatchSize, func(batch, batches int) {
		log.Info("uploaded batch", "batch", batch, "batches", batches)
	})
	if err != nil {
		return nil, dqerr.With(err, dqerr.FieldDocumentHash(hash))
	}

	res := &IngestResult{Hash: hash, Name: req.Name, Pages: len(pages), Chunks: len(chunks)}
	p.recordDocument(ctx, res, int64(len(req.Data)))
	log.Info("document ingested", "pages", res.Pages, "chunks", res.Chunks, "duration", time.Since(start))
	return res, nil
}

func (p *Pipeline) skipped(ctx context.Context, hash string, req IngestRequest) (*IngestResult, error) {
	res := &IngestResult{Hash: hash, Name: req.Name, Skipped: true}

	if p.catalog != nil {
		doc, err := p.catalog.Documents().Get(ctx, hash)
		if err == nil {
			res.Name, res.Pages, res.Chunks = doc.Name, doc.Pages, doc.Chunks
			return res, nil
		}
		if !dqerr.IsNotFound(err) {
			slog.Warn("reading catalog entry failed", "pdf_hash", hash, "error", err)
		}
	}

	n, err := p.vectors.Count(ctx, vectorstore.DocumentFilter(hash))
	if err != nil {
		return nil, dqerr.With(err, dqerr.FieldDocumentHash(hash))
	}
	res.Chunks = n
	// Indexed by another process or before the catalog existed.
	p.recordDocument(ctx, res, int64(len(req.Data)))
	return res, nil
}

// recordDocument writes the catalog entry. Failures are logged only.
func (p *Pipeline) recordDocument(ctx context.Context, res *IngestResult, size int64) {
	if p.catalog == nil {
		return
	}
	doc := &store.Document{
		Hash:           res.Hash,
		Name:           res.Name,
		SizeBytes:      size,
		Pages:          res.Pages,
		Chunks:         res.Chunks,
		EmbeddingModel: p.embedder.Model(),
		IngestedAt:     time.Now().UTC(),
	}
	if err := p.catalog.Documents().Put(ctx, doc); err != nil {
		slog.Warn("recording catalog entry failed", "pdf_hash", res.Hash, "error", err)
	}
}
