// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/docqa/internal/rag"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the local index",
		Long:  "Retrieve context from the local index and stream the model's answer to stdout. No gateway is needed.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().StringP("document", "d", "", "document hash to ask about")
	cmd.Flags().StringP("session", "s", "", "session to continue")
	cmd.Flags().Bool("sources", false, "print the chunks the answer was based on")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	hash, _ := cmd.Flags().GetString("document")
	session, _ := cmd.Flags().GetString("session")
	showSources, _ := cmd.Flags().GetBool("sources")

	events, err := app.Pipeline.Ask(ctx, rag.AskRequest{
		Question:     strings.Join(args, " "),
		DocumentHash: hash,
		SessionID:    session,
	})
	if err != nil {
		return err
	}
	printAnswer(cmd.OutOrStdout(), cmd.ErrOrStderr(), events, showSources)
	return nil
}

// printAnswer writes text deltas to out as they arrive. Error text goes to
// errOut so the answer stays clean when piped.
func printAnswer(out, errOut io.Writer, events <-chan rag.Event, showSources bool) {
	var sources []rag.Source
	for ev := range events {
		switch ev.Type {
		case rag.EventSources:
			sources = ev.Sources
		case rag.EventTextDelta:
			_, _ = fmt.Fprint(out, ev.Text)
		case rag.EventError:
			_, _ = fmt.Fprintln(errOut, ev.Text)
		case rag.EventDone:
			_, _ = fmt.Fprintln(out)
		}
	}
	if showSources {
		for _, s := range sources {
			_, _ = fmt.Fprintf(out, "[%s p.%d #%d %.3f] %s\n", s.DocumentHash, s.Page, s.ChunkID, s.Score, oneLine(s.Text, 80))
		}
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
