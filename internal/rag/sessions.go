// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// StartSession opens a conversation about an ingested document.
func (p *Pipeline) StartSession(ctx context.Context, hash, name string) (*store.Session, error) {
	if err := p.requireCatalog(); err != nil {
		return nil, err
	}
	if !document.IsValidHash(hash) {
		return nil, dqerr.Errorf(dqerr.CodeAskRequestInvalid, "invalid document hash %q", hash)
	}
	sess := &store.Session{
		ID:           uuid.NewString(),
		DocumentHash: hash,
		DocumentName: name,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.catalog.Sessions().Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Sessions lists chat sessions, newest first.
func (p *Pipeline) Sessions(ctx context.Context, opts store.ListOpts) ([]*store.Session, error) {
	if err := p.requireCatalog(); err != nil {
		return nil, err
	}
	return p.catalog.Sessions().List(ctx, opts)
}

// History returns the most recent messages of a session, oldest first.
func (p *Pipeline) History(ctx context.Context, sessionID string, opts store.ListOpts) ([]*store.Message, error) {
	if err := p.requireCatalog(); err != nil {
		return nil, err
	}
	if _, err := p.catalog.Sessions().Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return p.catalog.Messages().List(ctx, sessionID, opts)
}
