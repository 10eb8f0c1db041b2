// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Factory opens the catalog stores inside dataPath.
type Factory func(dataPath string) (Stores, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// Open creates the catalog stores for the configured backend.
func Open(cfg *StorageConfig, dataPath string) (Stores, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, dqerr.Errorf(dqerr.CodeStoreInvalidInput, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
