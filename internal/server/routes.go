// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// multipartOverhead is the allowance for form boundaries and headers on
// top of the file itself.
const multipartOverhead = 1 << 20

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "gateway-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Gateway and provider status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents",
		Summary:     "List ingested documents",
		Tags:        []string{"documents"},
	}, s.handleListDocuments)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/api/v1/documents/{hash}",
		Summary:     "Get document details",
		Tags:        []string{"documents"},
	}, s.handleGetDocument)

	huma.Register(s.api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/documents/{hash}/sessions",
		Summary:       "Start a chat session about a document",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleStartSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List chat sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "Get session history",
		Tags:        []string{"sessions"},
	}, s.handleListMessages)

	huma.Register(s.api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Ask a question and wait for the full answer",
		Tags:        []string{"chat"},
	}, s.handleAsk)
}

// --- Request/Response types for huma ---

type statusOutput struct {
	Body struct {
		Status    string                    `json:"status" example:"ok" doc:"Gateway status"`
		Version   string                    `json:"version" doc:"Gateway version"`
		Providers []provider.ProviderStatus `json:"providers" doc:"Generation provider health"`
	}
}

type listDocumentsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum results; 0 means the default"`
	Offset int `query:"offset" minimum:"0" doc:"Results to skip"`
}
type listDocumentsOutput struct {
	Body struct {
		Documents []*store.Document `json:"documents"`
	}
}

type documentHashInput struct {
	Hash string `path:"hash" doc:"Document content hash"`
}
type getDocumentOutput struct {
	Body *store.Document
}

type startSessionOutput struct {
	Body *store.Session
}

type listSessionsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum results; 0 means the default"`
	Offset int `query:"offset" minimum:"0" doc:"Results to skip"`
}
type listSessionsOutput struct {
	Body struct {
		Sessions []*store.Session `json:"sessions"`
	}
}

type listMessagesInput struct {
	ID    string `path:"id" doc:"Session identifier"`
	Limit int    `query:"limit" minimum:"0" maximum:"1000" doc:"Most recent messages to return; 0 means the default"`
}
type listMessagesOutput struct {
	Body struct {
		Messages []*store.Message `json:"messages"`
	}
}

type askInput struct {
	Body struct {
		Content      string `json:"content" minLength:"1" doc:"Question"`
		SessionID    string `json:"session_id,omitempty" doc:"Session to continue"`
		DocumentHash string `json:"document_hash,omitempty" doc:"Document to ask about"`
	}
}
type askOutput struct {
	Body *rag.Answer
}

// UploadResponse is the body returned by the upload route.
type UploadResponse struct {
	*rag.IngestResult
	SessionID string `json:"session_id"`
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.Version = s.cfg.Version
	out.Body.Providers = s.services.Status().Statuses(ctx)
	return out, nil
}

func (s *Server) handleListDocuments(ctx context.Context, input *listDocumentsInput) (*listDocumentsOutput, error) {
	docs, err := s.services.Documents().List(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, apiError("listing documents", err)
	}
	out := &listDocumentsOutput{}
	out.Body.Documents = docs
	if out.Body.Documents == nil {
		out.Body.Documents = []*store.Document{}
	}
	return out, nil
}

func (s *Server) handleGetDocument(ctx context.Context, input *documentHashInput) (*getDocumentOutput, error) {
	if !document.IsValidHash(input.Hash) {
		return nil, huma.Error400BadRequest("invalid document hash")
	}
	doc, err := s.services.Documents().Get(ctx, input.Hash)
	if err != nil {
		return nil, apiError("getting document", err)
	}
	return &getDocumentOutput{Body: doc}, nil
}

func (s *Server) handleStartSession(ctx context.Context, input *documentHashInput) (*startSessionOutput, error) {
	if !document.IsValidHash(input.Hash) {
		return nil, huma.Error400BadRequest("invalid document hash")
	}
	doc, err := s.services.Documents().Get(ctx, input.Hash)
	if err != nil {
		return nil, apiError("starting session", err)
	}
	sess, err := s.services.QA().StartSession(ctx, doc.Hash, doc.Name)
	if err != nil {
		return nil, apiError("starting session", err)
	}
	return &startSessionOutput{Body: sess}, nil
}

func (s *Server) handleListSessions(ctx context.Context, input *listSessionsInput) (*listSessionsOutput, error) {
	sessions, err := s.services.QA().Sessions(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, apiError("listing sessions", err)
	}
	out := &listSessionsOutput{}
	out.Body.Sessions = sessions
	if out.Body.Sessions == nil {
		out.Body.Sessions = []*store.Session{}
	}
	return out, nil
}

func (s *Server) handleListMessages(ctx context.Context, input *listMessagesInput) (*listMessagesOutput, error) {
	msgs, err := s.services.QA().History(ctx, input.ID, store.ListOpts{Limit: input.Limit})
	if err != nil {
		return nil, apiError("listing messages", err)
	}
	out := &listMessagesOutput{}
	out.Body.Messages = msgs
	if out.Body.Messages == nil {
		out.Body.Messages = []*store.Message{}
	}
	return out, nil
}

func (s *Server) handleAsk(ctx context.Context, input *askInput) (*askOutput, error) {
	if !s.checkRequestLimit(ctx, "ask") {
		return nil, tooManyRequests("rate limit exceeded")
	}
	ans, err := s.services.QA().Answer(ctx, rag.AskRequest{
		Question:     input.Body.Content,
		SessionID:    input.Body.SessionID,
		DocumentHash: input.Body.DocumentHash,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, huma.Error504GatewayTimeout("request cancelled")
		}
		return nil, apiError("answering", err)
	}
	return &askOutput{Body: ans}, nil
}

// --- Upload ---

func (s *Server) registerUploadRoute() {
	s.router.Post("/api/v1/documents", s.handleUpload)

	// Multipart bodies are read by hand, so the operation is documented
	// here rather than through huma.Register.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "upload-document",
		Method:      http.MethodPost,
		Path:        "/api/v1/documents",
		Summary:     "Upload and index a PDF",
		Description: "Indexes the file unless a document with the same content hash exists, then starts a chat session about it.",
		Tags:        []string{"documents"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"file"},
						Properties: map[string]*huma.Schema{
							"file": {
								Type:        "string",
								Format:      "binary",
								Description: "PDF document",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"201": {Description: "Document indexed or already present; session started"},
			"400": {Description: "Missing file, not a PDF, or empty"},
			"413": {Description: "File too large"},
			"429": {Description: "Rate limit exceeded"},
			"503": {Description: "Pipeline not configured"},
		},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.services == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	if !s.checkRequestLimit(r.Context(), "upload") {
		writeTooManyRequests(w, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.cfg.MaxUploadBytes {
		writeError(w, "uploading", document.CheckUpload(header.Filename, header.Size, s.cfg.MaxUploadBytes))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, "uploading", dqerr.Wrap(err, dqerr.CodeServerRequestInvalid, "reading upload"))
		return
	}

	ctx := r.Context()
	res, err := s.services.QA().Ingest(ctx, rag.IngestRequest{Name: header.Filename, Data: data})
	if err != nil {
		writeError(w, "ingesting", err)
		return
	}
	sess, err := s.services.QA().StartSession(ctx, res.Hash, res.Name)
	if err != nil {
		writeError(w, "starting session", err)
		return
	}
	slog.Info("document uploaded", "pdf_hash", res.Hash, "skipped", res.Skipped, "session_id", sess.ID,
		"client", clientIPFromContext(ctx))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(UploadResponse{IngestResult: res, SessionID: sess.ID}); err != nil {
		slog.Error("encoding upload response", "error", err)
	}
}
