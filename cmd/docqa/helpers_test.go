// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/sigil-dev/docqa/internal/config"
)

// isolate points HOME at a temp dir so config bootstrap cannot touch the
// real one, swaps the OS keyring for an in-memory one, and resets the global
// Viper instance around the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	keyring.MockInit()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	isolate(t)

	root := NewRootCmd()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// fakeOpenAI serves the embeddings and streaming chat completion endpoints
// of an OpenAI-compatible API. Every text embeds to the same vector so all
// chunks match.
type fakeOpenAI struct {
	*httptest.Server
	answer      string
	embedCalls  atomic.Int32
	chatCalls   atomic.Int32
	lastMessage atomic.Value
}

func newFakeOpenAI(t *testing.T, answer string, dims int) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{answer: answer}
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			vec := make([]float64, dims)
			vec[0] = 1
			data[i] = item{Object: "embedding", Index: i, Embedding: vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "m",
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.chatCalls.Add(1)
		var req struct {
			Messages []struct {
				Content any `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if n := len(req.Messages); n > 0 {
			f.lastMessage.Store(fmt.Sprint(req.Messages[n-1].Content))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range strings.SplitAfter(f.answer, " ") {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", word)
		}
		_, _ = fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\",\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":2,\"total_tokens\":11}}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// testAppConfig wires everything to the fake API, the in-memory vector index,
// and no reranker.
func testAppConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Networking: config.NetworkingConfig{
			Listen: "127.0.0.1:0",
			RateLimit: config.RateLimitConfig{
				RequestsPerSecond:    100,
				Burst:                100,
				MaxConcurrentStreams: 4,
			},
		},
		Providers: map[string]config.ProviderConfig{
			"openai": {Endpoint: apiURL},
		},
		Models: config.ModelsConfig{Default: "openai/gpt-4o-mini", MaxTokens: 256},
		Embedding: config.EmbeddingConfig{
			Provider:          "openai",
			Model:             "m",
			Dimensions:        4,
			BatchSize:         32,
			RequestsPerSecond: 100,
		},
		Chunking:    config.ChunkingConfig{Size: 500, Overlap: 100},
		VectorStore: config.VectorStoreConfig{Backend: "memory", Collection: "test", UpsertBatchSize: 100},
		Retrieval:   config.RetrievalConfig{TopK: 5, Scope: config.ScopeDocument},
		Rerank:      config.RerankConfig{Provider: "none", TopN: 3},
		Storage:     config.StorageConfig{DataDir: t.TempDir()},
		Upload:      config.UploadConfig{MaxBytes: 40 << 20},
	}
}

// writeConfigFile writes cfg-equivalent YAML for commands that load config
// through viper.
func writeConfigFile(t *testing.T, apiURL, dataDir string) string {
	t.Helper()
	path := t.TempDir() + "/docqa.yaml"
	body := fmt.Sprintf(`providers:
  openai:
    endpoint: %s
models:
  default: openai/gpt-4o-mini
embedding:
  provider: openai
  model: m
  dimensions: 4
  requests_per_second: 100
vector_store:
  backend: memory
rerank:
  provider: none
storage:
  data_dir: %s
`, apiURL, dataDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// minimalPDF builds a single-page PDF showing text in Helvetica with a
// correct cross-reference table.
func minimalPDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
