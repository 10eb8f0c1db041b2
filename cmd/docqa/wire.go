// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/sigil-dev/docqa/internal/chunker"
	"github.com/sigil-dev/docqa/internal/config"
	"github.com/sigil-dev/docqa/internal/document"
	"github.com/sigil-dev/docqa/internal/embedding"
	googleembed "github.com/sigil-dev/docqa/internal/embedding/google"
	openaiembed "github.com/sigil-dev/docqa/internal/embedding/openai"
	"github.com/sigil-dev/docqa/internal/provider"
	anthropicprov "github.com/sigil-dev/docqa/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/docqa/internal/provider/google"
	openaiprov "github.com/sigil-dev/docqa/internal/provider/openai"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/rerank"
	"github.com/sigil-dev/docqa/internal/rerank/cohere"
	"github.com/sigil-dev/docqa/internal/secrets"
	"github.com/sigil-dev/docqa/internal/server"
	"github.com/sigil-dev/docqa/internal/store"
	_ "github.com/sigil-dev/docqa/internal/store/sqlite" // register sqlite catalog
	"github.com/sigil-dev/docqa/internal/vectorstore"
	_ "github.com/sigil-dev/docqa/internal/vectorstore/memory" // register memory index
	_ "github.com/sigil-dev/docqa/internal/vectorstore/qdrant" // register qdrant index
	_ "github.com/sigil-dev/docqa/internal/vectorstore/sqlite" // register sqlite-vec index
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// App holds the subsystems behind ingestion and answering.
type App struct {
	Pipeline *rag.Pipeline
	Registry *provider.Registry
	Vectors  vectorstore.Store
	Catalog  store.Stores
}

// WireApp builds the pipeline and everything it depends on.
func WireApp(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	dataDir := cfg.Storage.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	// 1. Embedder.
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeCLISetupFailure, "creating %s embedder", cfg.Embedding.Provider)
	}
	embedder = embedding.NewLimited(embedder, cfg.Embedding.RequestsPerSecond, max(1, int(cfg.Embedding.RequestsPerSecond)))

	// 2. Vector index.
	app.Vectors, err = vectorstore.Open(ctx, vectorstore.Config{
		Backend:    cfg.VectorStore.Backend,
		Collection: cfg.VectorStore.Collection,
		Dimensions: cfg.Embedding.Dimensions,
		Dir:        dataDir,
		Qdrant: vectorstore.QdrantConfig{
			Host:   cfg.VectorStore.Qdrant.Host,
			Port:   cfg.VectorStore.Qdrant.Port,
			APIKey: apiKey(cfg.VectorStore.Qdrant.APIKey),
			UseTLS: cfg.VectorStore.Qdrant.UseTLS,
		},
	})
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeCLISetupFailure, "opening %s vector store", cfg.VectorStore.Backend)
	}

	// 3. Catalog (documents, sessions, history).
	app.Catalog, err = store.Open(&store.StorageConfig{Backend: "sqlite"}, dataDir)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeCLISetupFailure, "opening catalog")
	}

	// 4. Generators. A missing generator only matters once a question is
	// asked, so ingestion still works without one.
	app.Registry = provider.NewRegistry()
	registerBuiltinProviders(cfg, app.Registry)
	if err := app.Registry.SetDefault(cfg.Models.Default); err != nil {
		slog.Warn("default model unavailable; questions will fail until its provider is configured",
			"model", cfg.Models.Default, "error", err)
	}
	if len(cfg.Models.Failover) > 0 {
		if err := app.Registry.SetFailover(cfg.Models.Failover); err != nil {
			slog.Warn("failover chain unavailable", "failover", cfg.Models.Failover, "error", err)
		}
	}

	// 5. Reranker.
	reranker, err := newReranker(cfg)
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeCLISetupFailure, "creating %s reranker", cfg.Rerank.Provider)
	}

	// 6. Splitter and pipeline.
	splitter, err := chunker.New(chunker.WithChunkSize(cfg.Chunking.Size), chunker.WithOverlap(cfg.Chunking.Overlap))
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeCLISetupFailure, "creating splitter")
	}

	opts := rag.DefaultOptions()
	opts.TopK = cfg.Retrieval.TopK
	opts.TopN = cfg.Rerank.TopN
	opts.Scope = cfg.Retrieval.Scope
	opts.EmbedBatchSize = cfg.Embedding.BatchSize
	opts.UpsertBatchSize = cfg.VectorStore.UpsertBatchSize
	opts.MaxUploadBytes = cfg.Upload.MaxBytes
	opts.Model = cfg.Models.Default
	opts.MaxTokens = cfg.Models.MaxTokens

	app.Pipeline, err = rag.New(rag.Config{
		Loader:   document.NewPDFLoader(),
		Splitter: splitter,
		Embedder: embedder,
		Vectors:  app.Vectors,
		Reranker: reranker,
		Router:   app.Registry,
		Catalog:  app.Catalog,
		Options:  opts,
	})
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeCLISetupFailure, "creating pipeline")
	}

	slog.Debug("pipeline ready",
		"embedder", embedder.Name(), "embedding_model", embedder.Model(),
		"vector_store", cfg.VectorStore.Backend, "reranker", reranker.Name(),
		"model", cfg.Models.Default, "data_dir", dataDir)
	return app, nil
}

// Close releases every subsystem that was opened.
func (a *App) Close() error {
	var errs []error
	if a.Registry != nil {
		errs = append(errs, a.Registry.Close())
	}
	if a.Vectors != nil {
		errs = append(errs, a.Vectors.Close())
	}
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	return errors.Join(errs...)
}

// Gateway is the wired HTTP server and the app behind it.
type Gateway struct {
	*App
	Server *server.Server
}

// WireGateway wires the app and an HTTP server in front of it.
func WireGateway(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	app, err := WireApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	services, err := server.NewServices(app.Pipeline, app.Catalog.Documents(), app.Registry)
	if err != nil {
		_ = app.Close()
		return nil, dqerr.Errorf(dqerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.Networking.Listen,
		CORSOrigins:    cfg.Networking.CORSOrigins,
		TrustedProxies: cfg.Networking.TrustedProxies,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond:    cfg.Networking.RateLimit.RequestsPerSecond,
			Burst:                cfg.Networking.RateLimit.Burst,
			MaxConcurrentStreams: cfg.Networking.RateLimit.MaxConcurrentStreams,
		},
		Version: version,
	})
	if err != nil {
		_ = app.Close()
		return nil, dqerr.Errorf(dqerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(services)

	return &Gateway{App: app, Server: srv}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	return gw.Server.Start(ctx)
}

// Close stops the server and releases the app.
func (gw *Gateway) Close() error {
	gw.Server.Close()
	return gw.App.Close()
}

// apiKey treats an unresolved keyring reference as no key.
func apiKey(value string) string {
	if secrets.IsKeyringURI(value) {
		return ""
	}
	return value
}

// providerFactory builds a provider.Provider from a ProviderConfig.
type providerFactory func(config.ProviderConfig) (provider.Provider, error)

// builtinProviderFactories maps provider names to their constructors.
// Declared as a variable so tests can inject failing factories.
var builtinProviderFactories = map[string]providerFactory{
	"anthropic": func(pc config.ProviderConfig) (provider.Provider, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: apiKey(pc.APIKey), BaseURL: pc.Endpoint})
	},
	"google": func(pc config.ProviderConfig) (provider.Provider, error) {
		return googleprov.New(googleprov.Config{APIKey: apiKey(pc.APIKey), BaseURL: pc.Endpoint})
	},
	"openai": func(pc config.ProviderConfig) (provider.Provider, error) {
		return openaiprov.New(openaiprov.Config{APIKey: apiKey(pc.APIKey), BaseURL: pc.Endpoint})
	},
}

// registerBuiltinProviders iterates configured providers and registers
// matching built-in implementations. Unknown names and providers that fail
// to build are logged and skipped.
func registerBuiltinProviders(cfg *config.Config, reg *provider.Registry) {
	for name, pc := range cfg.Providers {
		if apiKey(pc.APIKey) == "" && pc.Endpoint == "" {
			slog.Warn("skipping provider with no API key", "provider", name)
			continue
		}
		factory, ok := builtinProviderFactories[name]
		if !ok {
			slog.Warn("unknown provider in config, skipping", "provider", name)
			continue
		}
		p, err := factory(pc)
		if err != nil {
			slog.Warn("failed to create provider", "provider", name, "error", err)
			continue
		}
		reg.Register(name, p)
		slog.Debug("registered provider", "provider", name)
	}
}

// embedderFactory builds an embedding.Embedder from the config.
type embedderFactory func(ctx context.Context, cfg *config.Config) (embedding.Embedder, error)

var embedderFactories = map[string]embedderFactory{
	"openai": func(_ context.Context, cfg *config.Config) (embedding.Embedder, error) {
		pc := cfg.Providers["openai"]
		endpoint := cfg.Embedding.Endpoint
		if endpoint == "" {
			endpoint = pc.Endpoint
		}
		return openaiembed.New(openaiembed.Config{
			APIKey:     apiKey(pc.APIKey),
			BaseURL:    endpoint,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	},
	"google": func(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
		pc := cfg.Providers["google"]
		endpoint := cfg.Embedding.Endpoint
		if endpoint == "" {
			endpoint = pc.Endpoint
		}
		return googleembed.New(ctx, googleembed.Config{
			APIKey:     apiKey(pc.APIKey),
			BaseURL:    endpoint,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	},
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	factory, ok := embedderFactories[cfg.Embedding.Provider]
	if !ok {
		return nil, dqerr.Errorf(dqerr.CodeEmbeddingBackendUnsupported, "unsupported embedding provider: %q", cfg.Embedding.Provider)
	}
	return factory(ctx, cfg)
}

func newReranker(cfg *config.Config) (rerank.Reranker, error) {
	switch cfg.Rerank.Provider {
	case "", "none":
		return rerank.None{}, nil
	case "cohere":
		key := apiKey(cfg.Rerank.APIKey)
		if key == "" {
			return nil, dqerr.New(dqerr.CodeRerankRequestInvalid,
				"cohere reranker needs an API key: run 'docqa secret set cohere_api_key' or set rerank.provider to none")
		}
		return cohere.New(cohere.Config{APIKey: key, BaseURL: cfg.Rerank.Endpoint, Model: cfg.Rerank.Model})
	default:
		return nil, dqerr.Errorf(dqerr.CodeRerankBackendUnsupported, "unsupported rerank provider: %q", cfg.Rerank.Provider)
	}
}
