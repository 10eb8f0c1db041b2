// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vectorstore

import (
	"context"
	"slices"
	"sync"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Config carries what a backend needs to open the index.
type Config struct {
	Backend    string // "sqlite" when empty.
	Collection string
	Dimensions int
	Dir        string // Directory for file-backed backends.
	Qdrant     QdrantConfig
}

// QdrantConfig holds the gRPC connection settings for Qdrant.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Factory opens a Store for the given configuration.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the Store for cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "sqlite"
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, dqerr.Errorf(dqerr.CodeVectorBackendUnsupported, "unsupported vector store backend: %q", backend)
	}
	if cfg.Dimensions <= 0 {
		return nil, dqerr.Errorf(dqerr.CodeVectorRecordInvalid, "vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Collection == "" {
		cfg.Collection = "docqa"
	}

	return factory(ctx, cfg)
}
