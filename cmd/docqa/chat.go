// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/server"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// runTUI starts the interactive program. Tests replace it to avoid a TTY.
var runTUI = func(cmd *cobra.Command, m tea.Model) error {
	_, err := tea.NewProgram(m,
		tea.WithContext(commandContext(cmd)),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	).Run()
	return err
}

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask questions through the gateway",
		Long: "Send a question to a running gateway and stream the answer. " +
			"Starts an interactive session if no question is provided.",
		RunE: runChat,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address")
	cmd.Flags().StringP("session", "s", "", "resume existing session by ID")
	cmd.Flags().StringP("document", "d", "", "document hash to ask about")
	cmd.Flags().StringP("file", "f", "", "upload this PDF first and ask about it")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("address")
	session, _ := cmd.Flags().GetString("session")
	hash, _ := cmd.Flags().GetString("document")
	file, _ := cmd.Flags().GetString("file")

	ctx := commandContext(cmd)
	gw := newGatewayClient(addr)

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return dqerr.Errorf(dqerr.CodeCLIInputInvalid, "reading %s: %w", file, err)
		}
		up, err := gw.upload(ctx, file, data)
		if err != nil {
			return err
		}
		hash, session = up.Hash, up.SessionID
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %s as %s (%d chunks)\n", up.Name, up.Hash, up.Chunks)
	}

	if len(args) == 0 {
		return runTUI(cmd, newChatModel(ctx, gw, session, hash))
	}

	req := server.ChatStreamRequest{
		Content:      strings.Join(args, " "),
		SessionID:    session,
		DocumentHash: hash,
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	return gw.streamChat(ctx, req, func(ev rag.Event) error {
		switch ev.Type {
		case rag.EventTextDelta:
			_, err := fmt.Fprint(out, ev.Text)
			return err
		case rag.EventError:
			_, err := fmt.Fprintln(errOut, ev.Text)
			return err
		case rag.EventDone:
			_, err := fmt.Fprintln(out)
			return err
		}
		return nil
	})
}
