// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

func documentsGateway(t *testing.T, docs []*store.Document) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/documents" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": docs})
	}))
	t.Cleanup(srv.Close)
	return srv
}

var sampleDocs = []*store.Document{
	{
		Hash:           "0123456789ab",
		Name:           "report.pdf",
		SizeBytes:      2 * 1024 * 1024,
		Pages:          12,
		Chunks:         40,
		EmbeddingModel: "thenlper/gte-large",
		IngestedAt:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	},
}

func TestDocuments_Table(t *testing.T) {
	srv := documentsGateway(t, sampleDocs)

	out, _, err := execute(t, "documents", "--address", srv.Listener.Addr().String(), "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "HASH")
	assert.Contains(t, out, "0123456789ab")
	assert.Contains(t, out, "report.pdf")
	assert.Contains(t, out, "2.0 MB")
}

func TestDocuments_Empty(t *testing.T) {
	srv := documentsGateway(t, nil)

	out, _, err := execute(t, "documents", "--address", srv.Listener.Addr().String(), "--limit", "10")
	require.NoError(t, err)
	assert.Equal(t, "No documents indexed.\n", out)
}

func TestDocuments_JSON(t *testing.T) {
	srv := documentsGateway(t, sampleDocs)

	out, _, err := execute(t, "documents", "--address", srv.Listener.Addr().String(), "--limit", "10", "-o", "json")
	require.NoError(t, err)

	var got []*store.Document
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 40, got[0].Chunks)
}

func TestDocuments_YAML(t *testing.T) {
	srv := documentsGateway(t, sampleDocs)

	out, _, err := execute(t, "documents", "--address", srv.Listener.Addr().String(), "--limit", "10", "-o", "yaml")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "report.pdf", got[0]["name"])
	assert.Equal(t, 12, got[0]["pages"])
}

func TestDocuments_UnknownFormat(t *testing.T) {
	_, _, err := execute(t, "documents", "-o", "xml")
	require.Error(t, err)
	assert.True(t, dqerr.HasCode(err, dqerr.CodeCLIInputInvalid))
}

func TestDocuments_GatewayDown(t *testing.T) {
	_, _, err := execute(t, "documents", "--address", "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, dqerr.HasCode(err, dqerr.CodeCLIGatewayNotRunning))
}

func TestNewGatewayClient_AcceptsURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8000", newGatewayClient("127.0.0.1:8000").baseURL)
	assert.Equal(t, "https://qa.example.com", newGatewayClient("https://qa.example.com/").baseURL)
}
