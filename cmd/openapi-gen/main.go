// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/docqa/internal/provider"
	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/server"
	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	// Use no-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	svc, err := server.NewServices(stubQA{}, stubDocuments{}, stubStatus{})
	if err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer srv.Close()
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubQA struct{}

func (stubQA) Ingest(context.Context, rag.IngestRequest) (*rag.IngestResult, error) { return nil, nil }
func (stubQA) Ask(context.Context, rag.AskRequest) (<-chan rag.Event, error)       { return nil, nil }
func (stubQA) Answer(context.Context, rag.AskRequest) (*rag.Answer, error)         { return nil, nil }
func (stubQA) StartSession(context.Context, string, string) (*store.Session, error) {
	return nil, nil
}

func (stubQA) Sessions(context.Context, store.ListOpts) ([]*store.Session, error) {
	return nil, nil
}

func (stubQA) History(context.Context, string, store.ListOpts) ([]*store.Message, error) {
	return nil, nil
}

type stubDocuments struct{}

func (stubDocuments) Get(context.Context, string) (*store.Document, error) { return nil, nil }
func (stubDocuments) List(context.Context, store.ListOpts) ([]*store.Document, error) {
	return nil, nil
}

type stubStatus struct{}

func (stubStatus) Statuses(context.Context) []provider.ProviderStatus { return nil }
