// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/docqa/internal/rag"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// wireApp is swapped by tests to run commands against fakes.
var wireApp = WireApp

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Index PDF documents",
		Long:  "Extract, split, embed, and store each PDF. Documents already in the index are skipped.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	app, err := wireApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out := cmd.OutOrStdout()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return dqerr.Errorf(dqerr.CodeDocumentReadFailure, "reading %s: %w", path, err)
		}
		res, err := app.Pipeline.Ingest(ctx, rag.IngestRequest{Name: filepath.Base(path), Data: data})
		if err != nil {
			return dqerr.Wrapf(err, dqerr.CodeCLIRequestFailure, "ingesting %s", path)
		}
		if res.Skipped {
			_, _ = fmt.Fprintf(out, "%s  %s  already indexed (%d chunks)\n", res.Hash, res.Name, res.Chunks)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s  %s  %d pages, %d chunks\n", res.Hash, res.Name, res.Pages, res.Chunks)
	}
	return nil
}
