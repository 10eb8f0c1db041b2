// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rag ties document ingestion and question answering together:
// PDFs are split, embedded and indexed once per content hash, and questions
// are answered from the best matching chunks.
package rag

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sigil-dev/docqa/internal/chunker"
	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/embedding"
	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rerank"
	"github.com/sigil-dev/docqa/internal/store"
	"github.com/sigil-dev/docqa/internal/vectorstore"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Retrieval scopes.
const (
	ScopeDocument = "document"
	ScopeAll      = "all"
)

// NoRecordFound is the answer given when retrieval returns nothing.
const NoRecordFound = "No record found"

// Router picks the provider for a model reference, skipping providers that
// already failed during the current turn. *provider.Registry implements it.
type Router interface {
	RouteExcluding(ctx context.Context, model string, exclude []string) (provider.Provider, string, error)
	MaxAttempts() int
}

var _ Router = (*provider.Registry)(nil)

// Options tunes retrieval and generation.
type Options struct {
	TopK            int    `validate:"gte=1,lte=100"`
	TopN            int    `validate:"gte=1,ltefield=TopK"`
	Scope           string `validate:"oneof=document all"`
	EmbedBatchSize  int    `validate:"gte=1"`
	UpsertBatchSize int    `validate:"gte=1"`
	MaxUploadBytes  int64  `validate:"gte=1"`
	// Model is a provider/model reference; empty routes to the default.
	Model     string
	MaxTokens int `validate:"gte=0"`
}

// DefaultOptions returns the retrieval settings used when none are
// configured: five candidates reranked down to three, searched within the
// session's document.
func DefaultOptions() Options {
	return Options{
		TopK:            5,
		TopN:            rerank.DefaultTopN,
		Scope:           ScopeDocument,
		EmbedBatchSize:  32,
		UpsertBatchSize: vectorstore.DefaultUpsertBatchSize,
		MaxUploadBytes:  document.MaxUploadBytes,
	}
}

// Config holds the Pipeline dependencies. Reranker and Catalog are
// optional.
type Config struct {
	Loader   document.Loader
	Splitter *chunker.Splitter
	Embedder embedding.Embedder
	Vectors  vectorstore.Store
	Reranker rerank.Reranker
	Router   Router
	Catalog  store.Stores
	Options  Options
}

// Pipeline runs ingestion and question answering.
type Pipeline struct {
	loader   document.Loader
	splitter *chunker.Splitter
	embedder embedding.Embedder
	vectors  vectorstore.Store
	reranker rerank.Reranker
	router   Router
	catalog  store.Stores
	opts     Options
	locks    *keyedMutex
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	var missing []string
	if cfg.Loader == nil {
		missing = append(missing, "Loader")
	}
	if cfg.Splitter == nil {
		missing = append(missing, "Splitter")
	}
	if cfg.Embedder == nil {
		missing = append(missing, "Embedder")
	}
	if cfg.Vectors == nil {
		missing = append(missing, "Vectors")
	}
	if cfg.Router == nil {
		missing = append(missing, "Router")
	}
	if len(missing) > 0 {
		return nil, dqerr.New(dqerr.CodeRAGConfigInvalid,
			"missing required dependencies: "+strings.Join(missing, ", "))
	}
	if err := validate.Struct(cfg.Options); err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeRAGConfigInvalid, "invalid pipeline options")
	}

	reranker := cfg.Reranker
	if reranker == nil {
		reranker = rerank.None{}
	}

	return &Pipeline{
		loader:   cfg.Loader,
		splitter: cfg.Splitter,
		embedder: cfg.Embedder,
		vectors:  cfg.Vectors,
		reranker: reranker,
		router:   cfg.Router,
		catalog:  cfg.Catalog,
		opts:     cfg.Options,
		locks:    newKeyedMutex(),
	}, nil
}

// Options returns the pipeline settings.
func (p *Pipeline) Options() Options { return p.opts }

// Catalog returns the catalog stores, or nil when none is configured.
func (p *Pipeline) Catalog() store.Stores { return p.catalog }

func (p *Pipeline) requireCatalog() error {
	if p.catalog == nil {
		return dqerr.New(dqerr.CodeRAGConfigInvalid, "no catalog configured")
	}
	return nil
}
