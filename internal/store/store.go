// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package store persists the document catalog and chat history. Vectors live
// in the vectorstore package; this package only records what was ingested
// and what was said about it.
package store

import "context"

// Stores groups the catalog sub-stores that share one database.
type Stores interface {
	Documents() DocumentStore
	Sessions() SessionStore
	Messages() MessageStore
	Close() error
}

// DocumentStore records every ingested document, keyed by its hash.
type DocumentStore interface {
	// Put inserts or replaces the entry for doc.Hash.
	Put(ctx context.Context, doc *Document) error
	Get(ctx context.Context, hash string) (*Document, error)
	List(ctx context.Context, opts ListOpts) ([]*Document, error)
}

// SessionStore manages chat sessions, one per upload.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, opts ListOpts) ([]*Session, error)
}

// MessageStore holds the question and answer turns of a session.
type MessageStore interface {
	Append(ctx context.Context, msg *Message) error
	// List returns the last opts.Limit messages of the session in
	// chronological order.
	List(ctx context.Context, sessionID string, opts ListOpts) ([]*Message, error)
}
