// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai embeds text through the OpenAI embeddings API or any
// server that speaks it, such as text-embeddings-inference or Ollama.
package openai

import (
	"context"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Config holds embedder configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// Embedder implements embedding.Embedder.
type Embedder struct {
	client openaisdk.Client
	config Config
}

// New creates an embedder. An API key is only required against the hosted
// OpenAI API; self-hosted servers accept any placeholder.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, dqerr.New(dqerr.CodeEmbeddingRequestInvalid, "openai embedder: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, dqerr.Errorf(dqerr.CodeEmbeddingRequestInvalid, "openai embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.APIKey == "" {
		if cfg.BaseURL == "" {
			return nil, dqerr.New(dqerr.CodeEmbeddingRequestInvalid, "openai embedder: missing api_key in config")
		}
		cfg.APIKey = "unused"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Embedder{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (e *Embedder) Name() string    { return "openai" }
func (e *Embedder) Model() string   { return e.config.Model }
func (e *Embedder) Dimensions() int { return e.config.Dimensions }

// Embed sends all texts in one request and reorders the response by index.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openaisdk.EmbeddingModel(e.config.Model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a requested size.
	if strings.HasPrefix(e.config.Model, "text-embedding-3") {
		params.Dimensions = param.NewOpt(int64(e.config.Dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, dqerr.ClassifyUpstream(err, dqerr.CodeEmbeddingUpstreamUnreachable, dqerr.CodeEmbeddingUpstreamFailure, "openai embedder: embedding %d texts", len(texts))
	}
	if len(resp.Data) != len(texts) {
		return nil, dqerr.Errorf(dqerr.CodeEmbeddingUpstreamFailure,
			"openai embedder: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, dqerr.Errorf(dqerr.CodeEmbeddingUpstreamFailure, "openai embedder: embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}
