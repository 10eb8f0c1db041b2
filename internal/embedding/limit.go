// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
	"golang.org/x/time/rate"
)

// Limited throttles calls to an Embedder.
type Limited struct {
	Embedder
	limiter *rate.Limiter
}

// NewLimited wraps e so that at most rps calls per second reach it, with the
// given burst. A non-positive rps returns e unchanged.
func NewLimited(e Embedder, rps float64, burst int) Embedder {
	if rps <= 0 {
		return e
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{Embedder: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for the limiter before delegating.
func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeEmbeddingRequestInvalid, "waiting for %s rate limit", l.Name())
	}
	return l.Embedder.Embed(ctx, texts)
}
