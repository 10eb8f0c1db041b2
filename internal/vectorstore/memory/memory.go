// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memory is an in-process vector store using brute-force cosine
// similarity. Contents are lost on Close.
package memory

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"

	"github.com/sigil-dev/docqa/internal/vectorstore"
)

func init() {
	vectorstore.RegisterBackend("memory", func(_ context.Context, cfg vectorstore.Config) (vectorstore.Store, error) {
		return New(cfg.Dimensions), nil
	})
}

var _ vectorstore.Store = (*Store)(nil)

// Store holds records in a map keyed by ID.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	records    map[string]vectorstore.Record
}

// New returns an empty store. A dimensions value of zero accepts any length.
func New(dimensions int) *Store {
	return &Store{dimensions: dimensions, records: make(map[string]vectorstore.Record)}
}

func (s *Store) Upsert(_ context.Context, records []vectorstore.Record) error {
	if err := vectorstore.CheckRecords(records, s.dimensions); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) Query(_ context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	matches := make([]vectorstore.Match, 0, len(s.records))
	for _, r := range s.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, vectorstore.Match{ID: r.ID, Score: cosine(vector, r.Vector), Metadata: r.Metadata})
	}
	s.mu.RUnlock()

	slices.SortFunc(matches, func(a, b vectorstore.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) Exists(ctx context.Context, filter vectorstore.Filter) (bool, error) {
	n, err := s.Count(ctx, filter)
	return n > 0, err
}

func (s *Store) Count(_ context.Context, filter vectorstore.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if filter.Matches(r.Metadata) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.records)
	return nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
