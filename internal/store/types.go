// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "time"

// Document is a catalog entry for an ingested PDF.
type Document struct {
	Hash           string    `json:"hash" yaml:"hash"`
	Name           string    `json:"name" yaml:"name"`
	SizeBytes      int64     `json:"size_bytes" yaml:"size_bytes"`
	Pages          int       `json:"pages" yaml:"pages"`
	Chunks         int       `json:"chunks" yaml:"chunks"`
	EmbeddingModel string    `json:"embedding_model" yaml:"embedding_model"`
	IngestedAt     time.Time `json:"ingested_at" yaml:"ingested_at"`
}

// Session is a conversation about one document.
type Session struct {
	ID           string    `json:"id"`
	DocumentHash string    `json:"document_hash"`
	DocumentName string    `json:"document_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageRole identifies the sender of a message in a session.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one turn of a session.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}

// DefaultListLimit applies when ListOpts.Limit is zero or negative.
const DefaultListLimit = 100

// EffectiveLimit returns Limit or DefaultListLimit when unset.
func (o ListOpts) EffectiveLimit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}
