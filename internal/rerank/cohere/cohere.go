// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package cohere reranks documents with the Cohere rerank endpoint.
package cohere

import (
	"context"
	"net/http"
	"strings"
	"time"

	cohereapi "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"

	"github.com/sigil-dev/docqa/internal/rerank"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

const (
	DefaultBaseURL = "https://api.cohere.com"
	DefaultModel   = "rerank-english-v2.0"
)

// Config holds reranker configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// HTTPClient overrides the default client with a 30s timeout.
	HTTPClient *http.Client
}

// Reranker implements rerank.Reranker.
type Reranker struct {
	client *cohereclient.Client
	model  string
}

var _ rerank.Reranker = (*Reranker)(nil)

func New(cfg Config) (*Reranker, error) {
	if cfg.APIKey == "" {
		return nil, dqerr.New(dqerr.CodeRerankRequestInvalid, "cohere reranker: missing api_key in config")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := cohereclient.NewClient(
		option.WithToken(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		option.WithHTTPClient(httpClient),
		option.WithMaxAttempts(1),
	)
	return &Reranker{client: client, model: cfg.Model}, nil
}

func (r *Reranker) Name() string { return "cohere" }

func (r *Reranker) Rerank(ctx context.Context, query string, docs []string, topN int) ([]rerank.Result, error) {
	if len(docs) == 0 || topN <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, dqerr.New(dqerr.CodeRerankRequestInvalid, "cohere reranker: query must not be empty")
	}

	items := make([]*cohereapi.RerankRequestDocumentsItem, len(docs))
	for i, d := range docs {
		items[i] = &cohereapi.RerankRequestDocumentsItem{String: d}
	}

	resp, err := r.client.Rerank(ctx, &cohereapi.RerankRequest{
		Model:           cohereapi.String(r.model),
		Query:           query,
		Documents:       items,
		TopN:            cohereapi.Int(min(topN, len(docs))),
		ReturnDocuments: cohereapi.Bool(false),
	})
	if err != nil {
		return nil, dqerr.ClassifyUpstream(err, dqerr.CodeRerankUpstreamUnreachable, dqerr.CodeRerankUpstreamFailure,
			"cohere reranker: rerank with %s", r.model)
	}
	if resp == nil {
		return nil, dqerr.New(dqerr.CodeRerankResponseInvalid, "cohere reranker: empty response")
	}

	results := make([]rerank.Result, 0, len(resp.Results))
	for _, res := range resp.Results {
		if res == nil {
			continue
		}
		results = append(results, rerank.Result{Index: res.Index, Score: res.RelevanceScore})
	}
	if err := rerank.CheckResults(results, len(docs)); err != nil {
		return nil, err
	}
	return results, nil
}
