// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/server"
	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

const (
	knownHash   = "0123456789ab"
	knownSessID = "sess-1"
)

type fakeQA struct {
	mu       sync.Mutex
	ingested []rag.IngestRequest
	asked    []rag.AskRequest

	events []rag.Event
	askErr error
	answer *rag.Answer
	// started is signalled when Ask begins streaming; hold delays the
	// events until it is closed.
	started chan struct{}
	hold    chan struct{}
}

func (f *fakeQA) Ingest(_ context.Context, req rag.IngestRequest) (*rag.IngestResult, error) {
	if err := document.CheckUpload(req.Name, int64(len(req.Data)), document.MaxUploadBytes); err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeIngestRequestInvalid, "rejecting upload")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, req)
	return &rag.IngestResult{Hash: document.Hash(req.Data), Name: req.Name, Pages: 1, Chunks: 2}, nil
}

func (f *fakeQA) Ask(ctx context.Context, req rag.AskRequest) (<-chan rag.Event, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.mu.Lock()
	f.asked = append(f.asked, req)
	f.mu.Unlock()

	out := make(chan rag.Event)
	go func() {
		defer close(out)
		if f.started != nil {
			f.started <- struct{}{}
		}
		if f.hold != nil {
			select {
			case <-f.hold:
			case <-ctx.Done():
				return
			}
		}
		for _, ev := range f.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeQA) Answer(_ context.Context, req rag.AskRequest) (*rag.Answer, error) {
	if f.askErr != nil {
		return nil, f.askErr
	}
	f.mu.Lock()
	f.asked = append(f.asked, req)
	f.mu.Unlock()
	return f.answer, nil
}

func (f *fakeQA) StartSession(_ context.Context, hash, name string) (*store.Session, error) {
	return &store.Session{ID: knownSessID, DocumentHash: hash, DocumentName: name, CreatedAt: time.Now().UTC()}, nil
}

func (f *fakeQA) Sessions(_ context.Context, opts store.ListOpts) ([]*store.Session, error) {
	sessions := []*store.Session{
		{ID: knownSessID, DocumentHash: knownHash, DocumentName: "garden.pdf"},
		{ID: "sess-0", DocumentHash: knownHash, DocumentName: "garden.pdf"},
	}
	if opts.Offset >= len(sessions) {
		return nil, nil
	}
	return sessions[opts.Offset:], nil
}

func (f *fakeQA) History(_ context.Context, sessionID string, _ store.ListOpts) ([]*store.Message, error) {
	if sessionID != knownSessID {
		return nil, dqerr.Errorf(dqerr.CodeStoreSessionGetNotFound, "session %q not found", sessionID)
	}
	return []*store.Message{
		{ID: "m1", SessionID: sessionID, Role: store.MessageRoleUser, Content: "What grows?"},
		{ID: "m2", SessionID: sessionID, Role: store.MessageRoleAssistant, Content: "Tomatoes."},
	}, nil
}

func (f *fakeQA) Asked() []rag.AskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rag.AskRequest(nil), f.asked...)
}

type fakeDocs struct{ docs map[string]*store.Document }

func (f *fakeDocs) Get(_ context.Context, hash string) (*store.Document, error) {
	doc, ok := f.docs[hash]
	if !ok {
		return nil, dqerr.Errorf(dqerr.CodeStoreDocumentGetNotFound, "document %q not found", hash)
	}
	return doc, nil
}

func (f *fakeDocs) List(_ context.Context, _ store.ListOpts) ([]*store.Document, error) {
	out := make([]*store.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

type fakeStatus struct{}

func (fakeStatus) Statuses(context.Context) []provider.ProviderStatus {
	return []provider.ProviderStatus{{Available: true, Provider: "google", Message: "ok"}}
}

func answerEvents() []rag.Event {
	return []rag.Event{
		{Type: rag.EventSources, Sources: []rag.Source{{ID: knownHash + "_0", DocumentHash: knownHash, Text: "Tomatoes grow."}}},
		{Type: rag.EventTextDelta, Text: "Tomatoes"},
		{Type: rag.EventTextDelta, Text: " grow."},
		{Type: rag.EventDone, Provider: "google"},
	}
}

func newTestServer(t *testing.T, qa *fakeQA, mutate ...func(*server.Config)) *server.Server {
	t.Helper()
	cfg := server.Config{ListenAddr: "127.0.0.1:0"}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	docs := &fakeDocs{docs: map[string]*store.Document{
		knownHash: {Hash: knownHash, Name: "garden.pdf", Pages: 2, Chunks: 3},
	}}
	svc, err := server.NewServices(qa, docs, fakeStatus{})
	require.NoError(t, err)
	srv.RegisterServices(svc)
	return srv
}

func do(t *testing.T, srv *server.Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
