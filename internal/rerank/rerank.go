// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rerank reorders retrieved chunks by relevance to a query.
package rerank

import (
	"context"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// DefaultTopN is the number of documents kept after reranking.
const DefaultTopN = 3

// Result points at one input document and its relevance score.
type Result struct {
	Index int
	Score float64
}

// Reranker orders docs by relevance to query and keeps at most topN.
// Results are sorted by descending relevance.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]Result, error)
}

// None keeps the retrieval order.
type None struct{}

var _ Reranker = None{}

func (None) Name() string { return "none" }

func (None) Rerank(_ context.Context, _ string, docs []string, topN int) ([]Result, error) {
	n := min(len(docs), topN)
	if n < 0 {
		n = 0
	}
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{Index: i, Score: 1 - float64(i)/float64(len(docs))}
	}
	return out, nil
}

// CheckResults verifies that every result indexes into a list of n documents.
func CheckResults(results []Result, n int) error {
	for _, r := range results {
		if r.Index < 0 || r.Index >= n {
			return dqerr.Errorf(dqerr.CodeRerankResponseInvalid, "rerank result index %d out of range [0,%d)", r.Index, n)
		}
	}
	return nil
}
