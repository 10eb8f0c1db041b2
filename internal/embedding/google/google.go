// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google embeds text with the Gemini embedding models.
package google

import (
	"context"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
	"google.golang.org/genai"
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
	client *genai.Client
	config Config
}

// New creates an embedder for the Gemini API.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, dqerr.New(dqerr.CodeEmbeddingRequestInvalid, "google embedder: missing api_key in config")
	}
	if cfg.Model == "" {
		return nil, dqerr.New(dqerr.CodeEmbeddingRequestInvalid, "google embedder: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, dqerr.Errorf(dqerr.CodeEmbeddingRequestInvalid, "google embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeEmbeddingUpstreamFailure, "google embedder: creating client")
	}
	return &Embedder{client: client, config: cfg}, nil
}

func (e *Embedder) Name() string    { return "google" }
func (e *Embedder) Model() string   { return e.config.Model }
func (e *Embedder) Dimensions() int { return e.config.Dimensions }

// Embed requests one embedding per text at the configured dimensionality.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(e.config.Dimensions)),
	})
	if err != nil {
		return nil, dqerr.ClassifyUpstream(err, dqerr.CodeEmbeddingUpstreamUnreachable, dqerr.CodeEmbeddingUpstreamFailure, "google embedder: embedding %d texts", len(texts))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, dqerr.Errorf(dqerr.CodeEmbeddingUpstreamFailure,
			"google embedder: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, dqerr.Errorf(dqerr.CodeEmbeddingUpstreamFailure, "google embedder: missing embedding %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
