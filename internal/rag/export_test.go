// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

// HeldLocks returns the number of per-document ingest locks in use.
func HeldLocks(p *Pipeline) int { return p.locks.len() }
