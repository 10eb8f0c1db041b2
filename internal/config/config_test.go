// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigil-dev/docqa/internal/config"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func validConfig() *config.Config {
	return &config.Config{
		Networking: config.NetworkingConfig{Listen: "127.0.0.1:8000"},
		Models:     config.ModelsConfig{Default: "google/gemini-2.0-flash", MaxTokens: 1024},
		Embedding: config.EmbeddingConfig{
			Provider:   "openai",
			Model:      "thenlper/gte-large",
			Dimensions: 1024,
			BatchSize:  32,
		},
		Chunking:    config.ChunkingConfig{Size: 500, Overlap: 100},
		VectorStore: config.VectorStoreConfig{Backend: "sqlite", Collection: "docqa", UpsertBatchSize: 100},
		Retrieval:   config.RetrievalConfig{TopK: 5, Scope: config.ScopeDocument},
		Rerank:      config.RerankConfig{Provider: "cohere", TopN: 3},
		Upload:      config.UploadConfig{MaxBytes: 40 << 20},
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.Networking.Listen)
	assert.Equal(t, "google/gemini-2.0-flash", cfg.Models.Default)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 100, cfg.VectorStore.UpsertBatchSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Rerank.TopN)
	assert.Equal(t, "rerank-english-v2.0", cfg.Rerank.Model)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, int64(40<<20), cfg.Upload.MaxBytes)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
networking:
  listen: "0.0.0.0:9999"
models:
  default: "openai/llama3.1"
providers:
  openai:
    api_key: "test-key"
    endpoint: "http://localhost:11434/v1"
vector_store:
  backend: qdrant
  qdrant:
    host: qdrant.internal
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Networking.Listen)
	assert.Equal(t, "openai/llama3.1", cfg.Models.Default)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Providers["openai"].Endpoint)
	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCQA_NETWORKING_LISTEN", "10.0.0.1:8080")
	t.Setenv("DOCQA_RETRIEVAL_TOP_K", "8")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Networking.Listen)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
}

func TestLoad_ProviderKeyFromEnv(t *testing.T) {
	t.Setenv("DOCQA_PROVIDERS_GOOGLE_API_KEY", "env-key")
	t.Setenv("COHERE_API_KEY", "cohere-key")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Providers["google"].APIKey)
	assert.Equal(t, "cohere-key", cfg.Rerank.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, dqerr.HasCode(err, dqerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	path := writeConfig(t, `
chunking:
  size: 100
  overlap: 200
`)

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunking.overlap")
	assert.True(t, dqerr.IsInvalidInput(err))
}

func TestFromViper_UsesSuppliedInstance(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("rerank.provider", "none")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Rerank.Provider)
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty listen", func(c *config.Config) { c.Networking.Listen = "" }, "networking.listen"},
		{"listen without port", func(c *config.Config) { c.Networking.Listen = "localhost" }, "networking.listen"},
		{"port out of range", func(c *config.Config) { c.Networking.Listen = "localhost:70000" }, "between 1 and 65535"},
		{"rate without burst", func(c *config.Config) { c.Networking.RateLimit.RequestsPerSecond = 1 }, "rate_limit.burst"},
		{"model without provider", func(c *config.Config) { c.Models.Default = "gemini" }, "provider/model"},
		{"unconfigured provider", func(c *config.Config) {
			c.Providers = map[string]config.ProviderConfig{"openai": {}}
		}, "not configured"},
		{"bad failover", func(c *config.Config) { c.Models.Failover = []string{"llama"} }, "models.failover[0]"},
		{"unknown embedder", func(c *config.Config) { c.Embedding.Provider = "tfidf" }, "embedding.provider"},
		{"zero dimensions", func(c *config.Config) { c.Embedding.Dimensions = 0 }, "embedding.dimensions"},
		{"overlap equals size", func(c *config.Config) { c.Chunking.Overlap = 500 }, "chunking.overlap"},
		{"unknown backend", func(c *config.Config) { c.VectorStore.Backend = "pinecone" }, "vector_store.backend"},
		{"zero batch", func(c *config.Config) { c.VectorStore.UpsertBatchSize = 0 }, "upsert_batch_size"},
		{"qdrant port", func(c *config.Config) { c.VectorStore.Backend = "qdrant" }, "vector_store.qdrant.port"},
		{"unknown scope", func(c *config.Config) { c.Retrieval.Scope = "web" }, "retrieval.scope"},
		{"top_n above top_k", func(c *config.Config) { c.Rerank.TopN = 9 }, "must not exceed"},
		{"unknown reranker", func(c *config.Config) { c.Rerank.Provider = "jina" }, "rerank.provider"},
		{"zero upload", func(c *config.Config) { c.Upload.MaxBytes = 0 }, "upload.max_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)

			var found bool
			for _, err := range errs {
				if dqerr.HasCode(err, dqerr.CodeConfigValidateInvalidValue) &&
					strings.Contains(err.Error(), tt.want) {
					found = true
				}
			}
			assert.True(t, found, "expected an error mentioning %q, got %v", tt.want, errs)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Networking.Listen = ""
	cfg.Retrieval.TopK = 0
	cfg.Embedding.Model = ""

	assert.GreaterOrEqual(t, len(cfg.Validate()), 3)
}

func TestProviderFromModel(t *testing.T) {
	assert.Equal(t, "google", config.ProviderFromModel("google/gemini-2.0-flash"))
	assert.Equal(t, "openai", config.ProviderFromModel("openai/thenlper/gte-large"))
	assert.Equal(t, "bare", config.ProviderFromModel("bare"))
}

func TestResolvedDataDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".local/share/docqa"),
		config.StorageConfig{DataDir: "~/.local/share/docqa"}.ResolvedDataDir())
	assert.Equal(t, "/var/lib/docqa", config.StorageConfig{DataDir: "/var/lib/docqa"}.ResolvedDataDir())
}

func TestDefaultConfigYAMLLoads(t *testing.T) {
	path := writeConfig(t, string(config.DefaultConfigYAML))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "keyring://docqa/google_api_key", cfg.Providers["google"].APIKey)
	assert.Equal(t, "document", cfg.Retrieval.Scope)
}
