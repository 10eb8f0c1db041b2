// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Valid reports whether the role is a known message role.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant:
		return true
	default:
		return false
	}
}

// Validate checks that the Document has all required fields set correctly.
func (d Document) Validate() error {
	if d.Hash == "" {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "document: Hash is required")
	}
	if d.Name == "" {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "document: Name is required", dqerr.FieldDocumentHash(d.Hash))
	}
	if d.SizeBytes < 0 || d.Pages < 0 || d.Chunks < 0 {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "document: counts must not be negative", dqerr.FieldDocumentHash(d.Hash))
	}
	if d.IngestedAt.IsZero() {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "document: IngestedAt is required", dqerr.FieldDocumentHash(d.Hash))
	}
	return nil
}

// Validate checks that the Session has all required fields set correctly.
func (s Session) Validate() error {
	if s.ID == "" {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "session: ID is required")
	}
	if s.DocumentHash == "" {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "session: DocumentHash is required", dqerr.FieldSessionID(s.ID))
	}
	if s.CreatedAt.IsZero() {
		return dqerr.New(dqerr.CodeStoreInvalidInput, "session: CreatedAt is required", dqerr.FieldSessionID(s.ID))
	}
	return nil
}

// Validate checks that the Message has all required fields set correctly.
func (m Message) Validate() error {
	if m.ID == "" {
		return dqerr.New(dqerr.CodeStoreMessageAppendInvalid, "message: ID is required")
	}
	if m.SessionID == "" {
		return dqerr.New(dqerr.CodeStoreMessageAppendInvalid, "message: SessionID is required")
	}
	if !m.Role.Valid() {
		return dqerr.Errorf(dqerr.CodeStoreMessageAppendInvalid, "message: invalid role %q", m.Role)
	}
	if m.CreatedAt.IsZero() {
		return dqerr.New(dqerr.CodeStoreMessageAppendInvalid, "message: CreatedAt is required")
	}
	return nil
}
