// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"log/slog"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Embedder converts texts into vectors. Implementations return exactly one
// vector per input text, in input order.
type Embedder interface {
	Name() string
	Model() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Progress is called after each embedded batch with the number of texts
// embedded so far and the total.
type Progress func(done, total int)

// EmbedQuery embeds a single text.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := Batched(ctx, e, []string{text}, 1, nil)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Batched embeds texts in batches of batchSize and checks that every vector
// has the embedder's dimensionality.
func Batched(ctx context.Context, e Embedder, texts []string, batchSize int, progress Progress) ([][]float32, error) {
	if batchSize <= 0 {
		return nil, dqerr.Errorf(dqerr.CodeEmbeddingRequestInvalid, "batch size must be positive, got %d", batchSize)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		vectors, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, dqerr.With(err, dqerr.Field("embedder", e.Name()), dqerr.Field("offset", start))
		}
		if len(vectors) != end-start {
			return nil, dqerr.Errorf(dqerr.CodeEmbeddingUpstreamFailure,
				"%s returned %d vectors for %d texts", e.Name(), len(vectors), end-start)
		}
		for i, v := range vectors {
			if err := CheckDimensions(v, e.Dimensions()); err != nil {
				return nil, dqerr.With(err, dqerr.Field("offset", start+i))
			}
		}

		out = append(out, vectors...)
		if progress != nil {
			progress(len(out), len(texts))
		}
		slog.Debug("embedded batch", "embedder", e.Name(), "done", len(out), "total", len(texts))
	}
	return out, nil
}

// CheckDimensions returns an error when v does not have want components.
func CheckDimensions(v []float32, want int) error {
	if len(v) != want {
		return dqerr.Errorf(dqerr.CodeEmbeddingDimensionMismatch,
			"embedding has %d dimensions, expected %d", len(v), want)
	}
	return nil
}
