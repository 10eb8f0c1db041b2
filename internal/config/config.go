// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level docqa configuration.
type Config struct {
	Networking  NetworkingConfig          `mapstructure:"networking"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Models      ModelsConfig              `mapstructure:"models"`
	Embedding   EmbeddingConfig           `mapstructure:"embedding"`
	Chunking    ChunkingConfig            `mapstructure:"chunking"`
	VectorStore VectorStoreConfig         `mapstructure:"vector_store"`
	Retrieval   RetrievalConfig           `mapstructure:"retrieval"`
	Rerank      RerankConfig              `mapstructure:"rerank"`
	Storage     StorageConfig             `mapstructure:"storage"`
	Upload      UploadConfig              `mapstructure:"upload"`
}

// NetworkingConfig controls how the gateway listens for connections.
type NetworkingConfig struct {
	Listen         string          `mapstructure:"listen"`
	CORSOrigins    []string        `mapstructure:"cors_origins"`
	TrustedProxies []string        `mapstructure:"trusted_proxies"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig sets the per-client request budget on chat routes.
type RateLimitConfig struct {
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
	Burst                int     `mapstructure:"burst"`
	MaxConcurrentStreams int     `mapstructure:"max_concurrent_streams"`
}

// ProviderConfig holds credentials and endpoint for a model provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelsConfig controls generator selection.
type ModelsConfig struct {
	Default   string   `mapstructure:"default"`
	Failover  []string `mapstructure:"failover"`
	MaxTokens int      `mapstructure:"max_tokens"`
}

// EmbeddingConfig selects the embedding backend. Credentials come from the
// providers section entry of the same name.
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"`
	Model             string  `mapstructure:"model"`
	Endpoint          string  `mapstructure:"endpoint"`
	Dimensions        int     `mapstructure:"dimensions"`
	BatchSize         int     `mapstructure:"batch_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// ChunkingConfig controls the recursive text splitter.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// VectorStoreConfig selects the vector index.
type VectorStoreConfig struct {
	Backend         string       `mapstructure:"backend"`
	Collection      string       `mapstructure:"collection"`
	UpsertBatchSize int          `mapstructure:"upsert_batch_size"`
	Qdrant          QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig holds the gRPC connection settings for Qdrant.
type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
}

// RetrievalConfig controls the similarity search.
type RetrievalConfig struct {
	TopK  int    `mapstructure:"top_k"`
	Scope string `mapstructure:"scope"`
}

// RerankConfig selects the reranker.
type RerankConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	TopN     int    `mapstructure:"top_n"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// StorageConfig locates the on-disk data.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// UploadConfig bounds accepted documents.
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

const (
	ScopeDocument = "document"
	ScopeAll      = "all"
)

var (
	validEmbeddingProviders = []string{"openai", "google"}
	validVectorBackends     = []string{"sqlite", "qdrant", "memory"}
	validRerankProviders    = []string{"cohere", "none"}
	validScopes             = []string{ScopeDocument, ScopeAll}
)

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8000")
	v.SetDefault("networking.rate_limit.requests_per_second", 2.0)
	v.SetDefault("networking.rate_limit.burst", 10)
	v.SetDefault("networking.rate_limit.max_concurrent_streams", 4)

	v.SetDefault("models.default", "google/gemini-2.0-flash")
	v.SetDefault("models.max_tokens", 2048)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "thenlper/gte-large")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.requests_per_second", 10.0)

	v.SetDefault("chunking.size", 500)
	v.SetDefault("chunking.overlap", 100)

	v.SetDefault("vector_store.backend", "sqlite")
	v.SetDefault("vector_store.collection", "docqa")
	v.SetDefault("vector_store.upsert_batch_size", 100)
	v.SetDefault("vector_store.qdrant.host", "localhost")
	v.SetDefault("vector_store.qdrant.port", 6334)

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.scope", ScopeDocument)

	v.SetDefault("rerank.provider", "cohere")
	v.SetDefault("rerank.model", "rerank-english-v2.0")
	v.SetDefault("rerank.top_n", 3)

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("upload.max_bytes", 40<<20)
}

// SetupEnv binds DOCQA_-prefixed environment variables. Provider keys have
// no defaults, so they are bound explicitly for AutomaticEnv to see them.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"google", "openai", "anthropic"} {
		_ = v.BindEnv("providers." + name + ".api_key")
		_ = v.BindEnv("providers." + name + ".endpoint")
	}
	_ = v.BindEnv("rerank.api_key", "DOCQA_RERANK_API_KEY", "COHERE_API_KEY")
	_ = v.BindEnv("rerank.endpoint")
	_ = v.BindEnv("embedding.endpoint")
	_ = v.BindEnv("vector_store.qdrant.api_key")
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, dqerr.Errorf(dqerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, dqerr.Errorf(dqerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix DOCQA_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, dqerr.Errorf(dqerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateChunking()...)
	errs = append(errs, c.validateVectorStore()...)
	errs = append(errs, c.validateRetrieval()...)

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, invalid("upload.max_bytes must be greater than 0, got %d", c.Upload.MaxBytes))
	}

	return errs
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Networking.Listen)
		if err != nil {
			errs = append(errs, dqerr.Errorf(dqerr.CodeConfigValidateInvalidValue,
				"config: networking.listen must be a valid host:port address, got %q: %w",
				c.Networking.Listen, err,
			))
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
			} else if port < 1 || port > 65535 {
				errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
			}
		}
	}

	for _, cidr := range c.Networking.TrustedProxies {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			errs = append(errs, invalid("networking.trusted_proxies entry %q is not a CIDR range", cidr))
		}
	}

	rl := c.Networking.RateLimit
	if rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("networking.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	}
	if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("networking.rate_limit.burst must be positive when a rate is set, got %d", rl.Burst))
	}

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	if c.Models.Default == "" {
		errs = append(errs, invalid("models.default must not be empty"))
	} else if !strings.Contains(c.Models.Default, "/") {
		errs = append(errs, invalid("models.default must be in \"provider/model\" format, got %q", c.Models.Default))
	} else if c.Providers != nil {
		// A nil map means no providers section was configured, which is valid
		// for a fresh install relying on env vars.
		providerName := ProviderFromModel(c.Models.Default)
		if _, ok := c.Providers[providerName]; !ok {
			errs = append(errs, invalid("models.default %q references provider %q which is not configured",
				c.Models.Default, providerName))
		}
	}

	for i, model := range c.Models.Failover {
		if !strings.Contains(model, "/") {
			errs = append(errs, invalid("models.failover[%d] must be in \"provider/model\" format, got %q", i, model))
		}
	}

	if c.Models.MaxTokens <= 0 {
		errs = append(errs, invalid("models.max_tokens must be greater than 0, got %d", c.Models.MaxTokens))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	if !slices.Contains(validEmbeddingProviders, c.Embedding.Provider) {
		errs = append(errs, invalid("embedding.provider must be one of %v, got %q", validEmbeddingProviders, c.Embedding.Provider))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, invalid("embedding.model must not be empty"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, invalid("embedding.dimensions must be greater than 0, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, invalid("embedding.batch_size must be greater than 0, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, invalid("embedding.requests_per_second must not be negative, got %g", c.Embedding.RequestsPerSecond))
	}

	return errs
}

func (c *Config) validateChunking() []error {
	var errs []error

	if c.Chunking.Size <= 0 {
		errs = append(errs, invalid("chunking.size must be greater than 0, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, invalid("chunking.overlap must be in [0, chunking.size), got %d", c.Chunking.Overlap))
	}

	return errs
}

func (c *Config) validateVectorStore() []error {
	var errs []error

	if !slices.Contains(validVectorBackends, c.VectorStore.Backend) {
		errs = append(errs, invalid("vector_store.backend must be one of %v, got %q", validVectorBackends, c.VectorStore.Backend))
	}
	if c.VectorStore.Collection == "" {
		errs = append(errs, invalid("vector_store.collection must not be empty"))
	}
	if c.VectorStore.UpsertBatchSize <= 0 {
		errs = append(errs, invalid("vector_store.upsert_batch_size must be greater than 0, got %d", c.VectorStore.UpsertBatchSize))
	}
	if c.VectorStore.Backend == "qdrant" && (c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535) {
		errs = append(errs, invalid("vector_store.qdrant.port must be between 1 and 65535, got %d", c.VectorStore.Qdrant.Port))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, invalid("retrieval.top_k must be greater than 0, got %d", c.Retrieval.TopK))
	}
	if !slices.Contains(validScopes, c.Retrieval.Scope) {
		errs = append(errs, invalid("retrieval.scope must be one of %v, got %q", validScopes, c.Retrieval.Scope))
	}
	if !slices.Contains(validRerankProviders, c.Rerank.Provider) {
		errs = append(errs, invalid("rerank.provider must be one of %v, got %q", validRerankProviders, c.Rerank.Provider))
	}
	if c.Rerank.TopN <= 0 {
		errs = append(errs, invalid("rerank.top_n must be greater than 0, got %d", c.Rerank.TopN))
	} else if c.Rerank.TopN > c.Retrieval.TopK {
		errs = append(errs, invalid("rerank.top_n (%d) must not exceed retrieval.top_k (%d)", c.Rerank.TopN, c.Retrieval.TopK))
	}

	return errs
}

func invalid(format string, args ...any) error {
	return dqerr.Errorf(dqerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

// ProviderFromModel extracts the provider prefix from a "provider/model" string.
func ProviderFromModel(model string) string {
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	return model
}

// ResolvedDataDir returns the data directory with a leading "~/" expanded.
func (s StorageConfig) ResolvedDataDir() string {
	if rest, ok := strings.CutPrefix(s.DataDir, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return s.DataDir
}
