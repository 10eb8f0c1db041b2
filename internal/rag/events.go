// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

import (
	"context"

	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/vectorstore"
)

// EventType identifies an answer stream event.
type EventType string

const (
	EventSources   EventType = "sources"
	EventTextDelta EventType = "text_delta"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// Source is a chunk the answer was grounded on.
type Source struct {
	ID           string  `json:"id"`
	DocumentHash string  `json:"pdf_hash"`
	ChunkID      int     `json:"chunk_id"`
	Page         int     `json:"page"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
}

func sourceFromMatch(m vectorstore.Match, score float64) Source {
	return Source{
		ID:           m.ID,
		DocumentHash: m.Metadata.DocumentHash,
		ChunkID:      m.Metadata.ChunkID,
		Page:         m.Metadata.Page,
		Score:        score,
		Text:         m.Metadata.Text,
	}
}

// Event is one element of an answer stream. Error events carry the message
// to show the user in Text and the cause in Err.
type Event struct {
	Type     EventType       `json:"type"`
	Text     string          `json:"text,omitempty"`
	Sources  []Source        `json:"sources,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Usage    *provider.Usage `json:"usage,omitempty"`
	Err      error           `json:"-"`
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
