// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// QAService ingests documents and answers questions about them.
// *rag.Pipeline satisfies it.
type QAService interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	Ask(ctx context.Context, req rag.AskRequest) (<-chan rag.Event, error)
	Answer(ctx context.Context, req rag.AskRequest) (*rag.Answer, error)
	StartSession(ctx context.Context, hash, name string) (*store.Session, error)
	Sessions(ctx context.Context, opts store.ListOpts) ([]*store.Session, error)
	History(ctx context.Context, sessionID string, opts store.ListOpts) ([]*store.Message, error)
}

// DocumentService reads the document catalog.
type DocumentService interface {
	Get(ctx context.Context, hash string) (*store.Document, error)
	List(ctx context.Context, opts store.ListOpts) ([]*store.Document, error)
}

// StatusService reports provider availability.
type StatusService interface {
	Statuses(ctx context.Context) []provider.ProviderStatus
}

var (
	_ QAService       = (*rag.Pipeline)(nil)
	_ DocumentService = (store.DocumentStore)(nil)
	_ StatusService   = (*provider.Registry)(nil)
)

// Services holds dependencies injected into route handlers.
// Use NewServices to ensure all of them are provided.
type Services struct {
	qa        QAService
	documents DocumentService
	status    StatusService
}

// NewServices creates a Services instance with validation.
func NewServices(qa QAService, documents DocumentService, status StatusService) (*Services, error) {
	if qa == nil {
		return nil, dqerr.New(dqerr.CodeServerConfigInvalid, "question answering service is required")
	}
	if documents == nil {
		return nil, dqerr.New(dqerr.CodeServerConfigInvalid, "document service is required")
	}
	if status == nil {
		return nil, dqerr.New(dqerr.CodeServerConfigInvalid, "status service is required")
	}
	return &Services{qa: qa, documents: documents, status: status}, nil
}

// QA returns the question answering service.
func (s *Services) QA() QAService { return s.qa }

// Documents returns the catalog service.
func (s *Services) Documents() DocumentService { return s.documents }

// Status returns the provider status service.
func (s *Services) Status() StatusService { return s.status }
