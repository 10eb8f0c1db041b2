// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sigil-dev/docqa/internal/embedding"
	"github.com/sigil-dev/docqa/internal/embedding/google"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ embedding.Embedder = (*google.Embedder)(nil)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  google.Config
		want string
	}{
		{"missing key", google.Config{Model: "text-embedding-004", Dimensions: 768}, "api_key"},
		{"missing model", google.Config{APIKey: "k", Dimensions: 768}, "model"},
		{"missing dimensions", google.Config{APIKey: "k", Model: "text-embedding-004"}, "dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := google.New(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, dqerr.HasCode(err, dqerr.CodeEmbeddingRequestInvalid))
		})
	}
}

func TestNew_Accessors(t *testing.T) {
	e, err := google.New(context.Background(), google.Config{APIKey: "k", Model: "text-embedding-004", Dimensions: 768})
	require.NoError(t, err)
	assert.Equal(t, "google", e.Name())
	assert.Equal(t, "text-embedding-004", e.Model())
	assert.Equal(t, 768, e.Dimensions())
}

func TestEmbed_EmptyInput(t *testing.T) {
	e, err := google.New(context.Background(), google.Config{APIKey: "k", Model: "text-embedding-004", Dimensions: 768})
	require.NoError(t, err)

	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

// fakeGemini answers batchEmbedContents with body and records the request.
func fakeGemini(t *testing.T, body string, got *map[string]any) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/text-embedding-004:batchEmbedContents"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestEmbedder(t *testing.T, baseURL string) *google.Embedder {
	t.Helper()
	e, err := google.New(context.Background(), google.Config{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Model:      "text-embedding-004",
		Dimensions: 3,
	})
	require.NoError(t, err)
	return e
}

func TestEmbed_ReturnsOneVectorPerText(t *testing.T) {
	var got map[string]any
	url := fakeGemini(t, `{"embeddings":[{"values":[0.1,0.2,0.3]},{"values":[0.4,0.5,0.6]}]}`, &got)
	e := newTestEmbedder(t, url)

	vectors, err := e.Embed(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, vectors[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0.4, 0.5, 0.6}, vectors[1], 1e-6)

	requests, ok := got["requests"].([]any)
	require.True(t, ok, "batch request body: %v", got)
	require.Len(t, requests, 2)
	first, ok := requests[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), first["outputDimensionality"])
}

func TestEmbed_CountMismatch(t *testing.T) {
	url := fakeGemini(t, `{"embeddings":[{"values":[0.1,0.2,0.3]}]}`, nil)
	e := newTestEmbedder(t, url)

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, dqerr.HasCode(err, dqerr.CodeEmbeddingUpstreamFailure))
	assert.Contains(t, err.Error(), "got 1 embeddings for 2 texts")
}

func TestEmbed_MissingEmbedding(t *testing.T) {
	url := fakeGemini(t, `{"embeddings":[{"values":[0.1,0.2,0.3]},null]}`, nil)
	e := newTestEmbedder(t, url)

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, dqerr.HasCode(err, dqerr.CodeEmbeddingUpstreamFailure))
}

func TestEmbed_WrongDimensionsCaughtByBatching(t *testing.T) {
	url := fakeGemini(t, `{"embeddings":[{"values":[0.1,0.2]}]}`, nil)
	e := newTestEmbedder(t, url)

	_, err := embedding.EmbedQuery(context.Background(), e, "question")
	require.Error(t, err)
	assert.True(t, dqerr.IsMismatch(err))
}

func TestEmbed_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e := newTestEmbedder(t, "http://"+addr)
	_, err = e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, dqerr.CodeEmbeddingUpstreamUnreachable, dqerr.CodeOf(err))
}
