// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/server"
	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

func TestNewServices_RequiresAll(t *testing.T) {
	docs := &fakeDocs{}
	_, err := server.NewServices(nil, docs, fakeStatus{})
	assert.Error(t, err)
	_, err = server.NewServices(&fakeQA{}, nil, fakeStatus{})
	assert.Error(t, err)
	_, err = server.NewServices(&fakeQA{}, docs, nil)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, &fakeQA{}, func(c *server.Config) { c.Version = "1.2.3" })

	w := do(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status    string `json:"status"`
		Version   string `json:"version"`
		Providers []struct {
			Provider  string `json:"provider"`
			Available bool   `json:"available"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	require.Len(t, body.Providers, 1)
	assert.Equal(t, "google", body.Providers[0].Provider)
	assert.True(t, body.Providers[0].Available)
}

func TestDocuments(t *testing.T) {
	srv := newTestServer(t, &fakeQA{})

	w := do(t, srv, http.MethodGet, "/api/v1/documents?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Documents []store.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Documents, 1)
	assert.Equal(t, "garden.pdf", list.Documents[0].Name)

	w = do(t, srv, http.MethodGet, "/api/v1/documents/"+knownHash, "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc store.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, 3, doc.Chunks)

	w = do(t, srv, http.MethodGet, "/api/v1/documents/ffffffffffff", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/documents/not-a-hash", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSessionForDocument(t *testing.T) {
	srv := newTestServer(t, &fakeQA{})

	w := do(t, srv, http.MethodPost, "/api/v1/documents/"+knownHash+"/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var sess store.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, knownSessID, sess.ID)
	assert.Equal(t, "garden.pdf", sess.DocumentName)

	w = do(t, srv, http.MethodPost, "/api/v1/documents/ffffffffffff/sessions", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionMessages(t *testing.T) {
	srv := newTestServer(t, &fakeQA{})

	w := do(t, srv, http.MethodGet, "/api/v1/sessions/"+knownSessID+"/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, store.MessageRoleAssistant, body.Messages[1].Role)

	w = do(t, srv, http.MethodGet, "/api/v1/sessions/missing/messages", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessions(t *testing.T) {
	srv := newTestServer(t, &fakeQA{})

	w := do(t, srv, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sessions []store.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, knownSessID, body.Sessions[0].ID)

	w = do(t, srv, http.MethodGet, "/api/v1/sessions?offset=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, stripSchema(t, w.Body.Bytes()))
}

func TestAsk(t *testing.T) {
	qa := &fakeQA{answer: &rag.Answer{Text: "Tomatoes grow.", Provider: "google"}}
	srv := newTestServer(t, qa)

	w := do(t, srv, http.MethodPost, "/api/v1/chat", `{"content":"What grows?","document_hash":"0123456789ab"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var ans rag.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ans))
	assert.Equal(t, "Tomatoes grow.", ans.Text)
	assert.Equal(t, []rag.AskRequest{{Question: "What grows?", DocumentHash: knownHash}}, qa.Asked())

	w = do(t, srv, http.MethodPost, "/api/v1/chat", `{"content":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAsk_ErrorsMapToStatus(t *testing.T) {
	srv := newTestServer(t, &fakeQA{askErr: dqerr.New(dqerr.CodeAskRequestInvalid, "question must not be empty")})
	w := do(t, srv, http.MethodPost, "/api/v1/chat", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "question must not be empty")
}

func TestAsk_RateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeQA{answer: &rag.Answer{Text: "ok"}}, func(c *server.Config) {
		c.RateLimit = server.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})

	w := do(t, srv, http.MethodPost, "/api/v1/chat", `{"content":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/chat", `{"content":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// A different client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString(`{"content":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.77:1234"
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpload(t *testing.T) {
	qa := &fakeQA{}
	srv := newTestServer(t, qa)
	data := []byte("%PDF-1.4 garden notes")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, uploadRequest(t, "file", "garden.pdf", data))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Hash      string `json:"hash"`
		Name      string `json:"name"`
		Skipped   bool   `json:"skipped"`
		Chunks    int    `json:"chunks"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, document.Hash(data), resp.Hash)
	assert.Equal(t, "garden.pdf", resp.Name)
	assert.Equal(t, 2, resp.Chunks)
	assert.Equal(t, knownSessID, resp.SessionID)
	require.Len(t, qa.ingested, 1)
	assert.Equal(t, data, qa.ingested[0].Data)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		filename string
		size     int
		status   int
	}{
		{"missing file field", "document", "a.pdf", 10, http.StatusBadRequest},
		{"not a pdf", "file", "notes.txt", 10, http.StatusBadRequest},
		{"empty pdf", "file", "empty.pdf", 0, http.StatusBadRequest},
		{"over the limit", "file", "big.pdf", 4096, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qa := &fakeQA{}
			srv := newTestServer(t, qa, func(c *server.Config) { c.MaxUploadBytes = 1024 })

			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, uploadRequest(t, tt.field, tt.filename, bytes.Repeat([]byte("x"), tt.size)))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Empty(t, qa.ingested)
		})
	}
}
