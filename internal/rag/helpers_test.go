// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package rag_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/docqa/internal/chunker"
	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/rerank"
	"github.com/sigil-dev/docqa/internal/store/sqlite"
	"github.com/sigil-dev/docqa/internal/vectorstore"
	"github.com/sigil-dev/docqa/internal/vectorstore/memory"
)

const testDims = 8

// textLoader treats the upload as plain text with form feeds between pages.
type textLoader struct{}

func (textLoader) Load(_ context.Context, data []byte) ([]document.Page, error) {
	var pages []document.Page
	for i, text := range strings.Split(string(data), "\f") {
		pages = append(pages, document.Page{Number: i, Text: text})
	}
	return pages, nil
}

// letterEmbedder maps text to letter-frequency buckets so texts sharing
// words end up close together.
type letterEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *letterEmbedder) Name() string    { return "letters" }
func (e *letterEmbedder) Model() string   { return "letters-v1" }
func (e *letterEmbedder) Dimensions() int { return testDims }

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDims)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[(r-'a')%testDims]++
			}
		}
		v[testDims-1] += 0.01
		out[i] = v
	}
	return out, nil
}

// scriptedProvider answers Chat with a caller-supplied function and tracks
// its own health like the real providers.
type scriptedProvider struct {
	name   string
	health *provider.HealthTracker
	chat   func(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error)

	mu    sync.Mutex
	calls []provider.ChatRequest
}

func newScriptedProvider(name string, chat func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error)) *scriptedProvider {
	return &scriptedProvider{name: name, health: provider.MustHealthTracker(), chat: chat}
}

func (p *scriptedProvider) Name() string                     { return p.name }
func (p *scriptedProvider) Available(_ context.Context) bool { return p.health.IsHealthy() }
func (p *scriptedProvider) Close() error                     { return nil }
func (p *scriptedProvider) RecordFailure()                   { p.health.RecordFailure() }
func (p *scriptedProvider) RecordSuccess()                   { p.health.RecordSuccess() }

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status(p.name), nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	return p.chat(ctx, req)
}

func (p *scriptedProvider) Calls() []provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.ChatRequest(nil), p.calls...)
}

// replying streams each delta followed by usage and done.
func replying(deltas ...string) func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
		ch := make(chan provider.ChatEvent, len(deltas)+2)
		for _, d := range deltas {
			ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: d}
		}
		ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 12, OutputTokens: len(deltas)}}
		ch <- provider.ChatEvent{Type: provider.EventTypeDone}
		close(ch)
		return ch, nil
	}
}

func failing(err error) func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
		return nil, err
	}
}

// flakyStore fails the Nth Upsert call and optionally every Exists call.
type flakyStore struct {
	vectorstore.Store
	failUpsertAt int
	existsErr    error
	upserts      atomic.Int32
}

func (s *flakyStore) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if int(s.upserts.Add(1)) == s.failUpsertAt {
		return errors.New("connection reset by peer")
	}
	return s.Store.Upsert(ctx, records)
}

func (s *flakyStore) Exists(ctx context.Context, f vectorstore.Filter) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.Store.Exists(ctx, f)
}

type fixture struct {
	pipeline *rag.Pipeline
	embedder *letterEmbedder
	vectors  vectorstore.Store
	registry *provider.Registry
	google   *scriptedProvider
	openai   *scriptedProvider
	catalog  *sqlite.Catalog
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	opts     rag.Options
	vectors  vectorstore.Store
	reranker rerank.Reranker
	catalog  bool
	google   func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error)
	openai   func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error)
	failover bool
}

func withOptions(fn func(*rag.Options)) fixtureOption {
	return func(c *fixtureConfig) { fn(&c.opts) }
}

func withVectors(s vectorstore.Store) fixtureOption {
	return func(c *fixtureConfig) { c.vectors = s }
}

func withReranker(r rerank.Reranker) fixtureOption {
	return func(c *fixtureConfig) { c.reranker = r }
}

func withCatalog() fixtureOption {
	return func(c *fixtureConfig) { c.catalog = true }
}

func withGoogle(chat func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error)) fixtureOption {
	return func(c *fixtureConfig) { c.google = chat }
}

func withFailover(chat func(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error)) fixtureOption {
	return func(c *fixtureConfig) {
		c.openai = chat
		c.failover = true
	}
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{
		opts:    rag.DefaultOptions(),
		vectors: memory.New(testDims),
		google:  replying("The answer", " is 42."),
		openai:  replying("fallback"),
	}
	cfg.opts.Model = "google/gemini-2.0-flash"
	cfg.opts.EmbedBatchSize = 4
	for _, o := range options {
		o(&cfg)
	}

	splitter, err := chunker.New(chunker.WithChunkSize(60), chunker.WithOverlap(10))
	require.NoError(t, err)

	f := &fixture{
		embedder: &letterEmbedder{},
		vectors:  cfg.vectors,
		registry: provider.NewRegistry(),
		google:   newScriptedProvider("google", cfg.google),
		openai:   newScriptedProvider("openai", cfg.openai),
	}
	f.registry.Register("google", f.google)
	f.registry.Register("openai", f.openai)
	require.NoError(t, f.registry.SetDefault(cfg.opts.Model))
	if cfg.failover {
		require.NoError(t, f.registry.SetFailover([]string{"openai/gpt-4o-mini"}))
	}

	ragCfg := rag.Config{
		Loader:   textLoader{},
		Splitter: splitter,
		Embedder: f.embedder,
		Vectors:  f.vectors,
		Reranker: cfg.reranker,
		Router:   f.registry,
		Options:  cfg.opts,
	}
	if cfg.catalog {
		f.catalog, err = sqlite.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.catalog.Close() })
		ragCfg.Catalog = f.catalog
	}

	f.pipeline, err = rag.New(ragCfg)
	require.NoError(t, err)
	return f
}

const (
	gardenText = "Apples grow on trees in the orchard.\n\nPears ripen late in autumn and are picked by hand.\fThe cellar keeps apples fresh through winter."
	engineText = "Engines burn fuel to produce torque.\n\nGearboxes multiply that torque for the wheels."
)

func ingest(t *testing.T, f *fixture, name, text string) *rag.IngestResult {
	t.Helper()
	res, err := f.pipeline.Ingest(context.Background(), rag.IngestRequest{Name: name, Data: []byte(text)})
	require.NoError(t, err)
	return res
}

func collect(t *testing.T, events <-chan rag.Event) []rag.Event {
	t.Helper()
	var out []rag.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("answer stream did not finish")
		}
	}
}

func types(events []rag.Event) []rag.EventType {
	out := make([]rag.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
