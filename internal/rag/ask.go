// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/embedding"
	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rerank"
	"github.com/sigil-dev/docqa/internal/store"
	"github.com/sigil-dev/docqa/internal/vectorstore"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// AskRequest is a question, optionally bound to a document or a session.
// A session supplies its document when DocumentHash is empty.
type AskRequest struct {
	Question     string
	DocumentHash string
	SessionID    string
}

// Answer is a fully collected answer stream.
type Answer struct {
	Text     string          `json:"text"`
	Sources  []Source        `json:"sources,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Usage    *provider.Usage `json:"usage,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Ask answers req as a stream of events that always ends with a done
// event. Invalid requests fail before streaming; every later failure is
// delivered as an error event.
func (p *Pipeline) Ask(ctx context.Context, req AskRequest) (<-chan Event, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, dqerr.New(dqerr.CodeAskRequestInvalid, "question must not be empty",
			dqerr.FieldSessionID(req.SessionID))
	}
	if req.DocumentHash != "" && !document.IsValidHash(req.DocumentHash) {
		return nil, dqerr.Errorf(dqerr.CodeAskRequestInvalid, "invalid document hash %q", req.DocumentHash)
	}
	if req.SessionID != "" {
		if err := p.requireCatalog(); err != nil {
			return nil, err
		}
		sess, err := p.catalog.Sessions().Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if req.DocumentHash == "" {
			req.DocumentHash = sess.DocumentHash
		}
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		p.run(ctx, req, out)
	}()
	return out, nil
}

// Answer runs Ask and collects the stream.
func (p *Pipeline) Answer(ctx context.Context, req AskRequest) (*Answer, error) {
	events, err := p.Ask(ctx, req)
	if err != nil {
		return nil, err
	}

	ans := &Answer{}
	var buf strings.Builder
	for ev := range events {
		switch ev.Type {
		case EventSources:
			ans.Sources = ev.Sources
		case EventTextDelta:
			buf.WriteString(ev.Text)
		case EventError:
			buf.WriteString(ev.Text)
			ans.Error = ev.Text
		case EventDone:
			ans.Provider = ev.Provider
			ans.Usage = ev.Usage
		}
	}
	ans.Text = buf.String()
	return ans, ctx.Err()
}

func (p *Pipeline) run(ctx context.Context, req AskRequest, out chan<- Event) {
	log := slog.With("pdf_hash", req.DocumentHash, "session_id", req.SessionID)
	p.appendMessage(ctx, req.SessionID, store.MessageRoleUser, req.Question)

	var reply strings.Builder
	done := Event{Type: EventDone}
	defer func() {
		p.appendMessage(context.WithoutCancel(ctx), req.SessionID, store.MessageRoleAssistant, reply.String())
		send(ctx, out, done)
	}()

	fail := func(stage string, err error) {
		log.Error("answering failed", "stage", stage, "error", err)
		msg := fmt.Sprintf("Sorry, an error occurred: %v", err)
		reply.WriteString(msg)
		send(ctx, out, Event{Type: EventError, Text: msg, Err: err})
	}

	sources, err := p.retrieve(ctx, req)
	if err != nil {
		fail("retrieve", err)
		return
	}
	if len(sources) == 0 {
		reply.WriteString(NoRecordFound)
		send(ctx, out, Event{Type: EventTextDelta, Text: NoRecordFound})
		return
	}
	if !send(ctx, out, Event{Type: EventSources, Sources: sources}) {
		return
	}

	chunks := make([]string, len(sources))
	for i, s := range sources {
		chunks[i] = s.Text
	}
	chatReq := provider.ChatRequest{
		Model:    p.opts.Model,
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: BuildPrompt(req.Question, chunks)}},
		Options:  provider.ChatOptions{MaxTokens: p.opts.MaxTokens},
	}

	gen, err := p.generate(ctx, chatReq, out)
	reply.WriteString(gen.text)
	done.Provider, done.Usage = gen.provider, gen.usage
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if generatorDown(err) {
		name := gen.provider
		if name == "" {
			name = providerOf(p.opts.Model)
		}
		log.Error("generator unreachable", "provider", name, "error", err)
		msg := provider.UnreachableMessage(name)
		reply.WriteString(msg)
		send(ctx, out, Event{Type: EventError, Text: msg, Provider: name, Err: err})
		return
	}
	fail("generate", err)
}

// retrieve embeds the question, searches the index and reranks the
// candidates. An empty result means nothing matched.
func (p *Pipeline) retrieve(ctx context.Context, req AskRequest) ([]Source, error) {
	vec, err := embedding.EmbedQuery(ctx, p.embedder, req.Question)
	if err != nil {
		return nil, err
	}

	var filter vectorstore.Filter
	if p.opts.Scope == ScopeDocument && req.DocumentHash != "" {
		filter = vectorstore.DocumentFilter(req.DocumentHash)
	}
	matches, err := p.vectors.Query(ctx, vec, p.opts.TopK, filter)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Metadata.Text
	}
	results, err := p.reranker.Rerank(ctx, req.Question, docs, p.opts.TopN)
	if err != nil {
		return nil, err
	}
	if err := rerank.CheckResults(results, len(docs)); err != nil {
		return nil, err
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = sourceFromMatch(matches[r.Index], r.Score)
	}
	slog.Debug("retrieved context", "matches", len(matches), "kept", len(sources), "reranker", p.reranker.Name())
	return sources, nil
}

type generation struct {
	text     string
	provider string
	usage    *provider.Usage
}

// generate streams the model answer into out. A provider whose upstream
// fails is marked unhealthy; the next candidate is tried only when no text
// has been streamed yet.
func (p *Pipeline) generate(ctx context.Context, req provider.ChatRequest, out chan<- Event) (generation, error) {
	var (
		tried   []string
		lastErr error
		last    generation
	)
	for attempt := 0; attempt < max(p.router.MaxAttempts(), 1); attempt++ {
		prov, model, err := p.router.RouteExcluding(ctx, req.Model, tried)
		if err != nil {
			if lastErr != nil {
				return last, lastErr
			}
			return last, err
		}
		tried = append(tried, prov.Name())

		attemptReq := req
		attemptReq.Model = model
		gen, err := p.stream(ctx, prov, attemptReq, out)
		gen.provider = prov.Name()
		if err == nil {
			if hr, ok := prov.(provider.HealthReporter); ok {
				hr.RecordSuccess()
			}
			return gen, nil
		}

		last, lastErr = gen, dqerr.With(err, dqerr.FieldProvider(prov.Name()))
		if ctx.Err() != nil || !dqerr.IsUpstreamFailure(err) {
			return last, lastErr
		}
		if hr, ok := prov.(provider.HealthReporter); ok {
			hr.RecordFailure()
		}
		if gen.text != "" {
			return last, lastErr
		}
		slog.Warn("provider failed, trying next", "provider", prov.Name(), "attempt", attempt+1, "error", err)
	}
	return last, lastErr
}

// stream forwards text deltas from one provider call.
func (p *Pipeline) stream(ctx context.Context, prov provider.Provider, req provider.ChatRequest, out chan<- Event) (generation, error) {
	start := time.Now()
	events, err := prov.Chat(ctx, req)
	if err != nil {
		return generation{}, err
	}

	var (
		buf       strings.Builder
		usage     *provider.Usage
		streamErr error
	)
	for ev := range events {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			if ev.Text == "" {
				continue
			}
			buf.WriteString(ev.Text)
			if !send(ctx, out, Event{Type: EventTextDelta, Text: ev.Text}) {
				return generation{text: buf.String(), usage: usage}, ctx.Err()
			}
		case provider.EventTypeUsage:
			usage = ev.Usage
		case provider.EventTypeDone:
			if ev.Usage != nil {
				usage = ev.Usage
			}
		case provider.EventTypeError:
			streamErr = ev.Err
			if streamErr == nil {
				streamErr = dqerr.New(dqerr.CodeProviderUpstreamFailure, "stream error: "+ev.Text)
			}
		}
	}

	slog.Debug("generation finished", "provider", prov.Name(), "model", req.Model,
		"chars", buf.Len(), "duration", time.Since(start))
	return generation{text: buf.String(), usage: usage}, streamErr
}

// generatorDown reports whether err means no model could be contacted.
func generatorDown(err error) bool {
	return dqerr.HasCode(err, dqerr.CodeProviderUpstreamUnreachable) || dqerr.HasCode(err, dqerr.CodeProviderAllUnavailable)
}

func providerOf(model string) string {
	name, _, ok := strings.Cut(model, "/")
	if !ok || name == "" {
		return "Model"
	}
	return name
}

func (p *Pipeline) appendMessage(ctx context.Context, sessionID string, role store.MessageRole, content string) {
	if sessionID == "" || p.catalog == nil || content == "" {
		return
	}
	msg := &store.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.catalog.Messages().Append(ctx, msg); err != nil {
		slog.Warn("recording message failed", "session_id", sessionID, "role", role, "error", err)
	}
}
