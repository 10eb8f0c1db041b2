// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/docqa/internal/rag"
)

// maxChatBodyBytes caps the JSON body of the streaming chat endpoint.
const maxChatBodyBytes = 64 << 10

// ChatStreamRequest is the request body for the SSE streaming endpoint.
type ChatStreamRequest struct {
	Content      string `json:"content"`
	SessionID    string `json:"session_id,omitempty"`
	DocumentHash string `json:"document_hash,omitempty"`
}

func (r ChatStreamRequest) askRequest() rag.AskRequest {
	return rag.AskRequest{Question: r.Content, SessionID: r.SessionID, DocumentHash: r.DocumentHash}
}

func (s *Server) registerSSERoute() {
	s.router.Post("/api/v1/chat/stream", s.handleChatStream)

	// The stream handler writes to the raw ResponseWriter, so the operation
	// is added to the OpenAPI document by hand.
	minContentLen := 1
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "chat-stream",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat/stream",
		Summary:     "Stream an answer via SSE",
		Description: "Ask a question and receive the answer as it is generated. Set Accept: text/event-stream for SSE, otherwise receives a JSON array of events.",
		Tags:        []string{"chat"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"content"},
						Properties: map[string]*huma.Schema{
							"content": {
								Type:        "string",
								MinLength:   &minContentLen,
								Description: "Question",
							},
							"session_id": {
								Type:        "string",
								Description: "Session to continue; supplies the document",
							},
							"document_hash": {
								Type:        "string",
								Description: "Document to ask about",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Answer stream (SSE or JSON depending on Accept header)",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Events: sources, text_delta, error, done",
						},
					},
					"application/json": {
						Schema: &huma.Schema{
							Type: "object",
							Properties: map[string]*huma.Schema{
								"events": {
									Type:        "array",
									Description: "Collected events",
									Items:       &huma.Schema{Type: "object"},
								},
							},
						},
					},
				},
			},
			"400": {Description: "Invalid request"},
			"404": {Description: "Session not found"},
			"429": {Description: "Rate limit exceeded"},
			"503": {Description: "Pipeline not configured"},
		},
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var req ChatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "content is required")
		return
	}
	if s.services == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}

	if !s.checkRequestLimit(r.Context(), "chat-stream") {
		writeTooManyRequests(w, "rate limit exceeded")
		return
	}
	key, ok := s.acquireStreamSlot(r.Context(), "chat-stream")
	if !ok {
		writeTooManyRequests(w, "too many concurrent streams")
		return
	}
	defer s.releaseStreamSlot(key)

	// Stops the pipeline goroutine when the client goes away or a write fails.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := s.services.QA().Ask(ctx, req.askRequest())
	if err != nil {
		writeError(w, "answering", err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeSSE(w, events)
		return
	}
	writeEventsJSON(w, events)
}

func writeSSE(w http.ResponseWriter, events <-chan rag.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Generation can outlast the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !isUnsupported(err) {
		slog.Debug("clearing write deadline failed", "error", err)
	}

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("encoding stream event", "type", ev.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil && !isUnsupported(err) {
			return
		}
	}
}

func writeEventsJSON(w http.ResponseWriter, events <-chan rag.Event) {
	collected := make([]rag.Event, 0, 8)
	for ev := range events {
		collected = append(collected, ev)
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Events []rag.Event `json:"events"`
	}{Events: collected}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding event list", "error", err)
	}
}

func isUnsupported(err error) bool {
	return errors.Is(err, http.ErrNotSupported)
}
