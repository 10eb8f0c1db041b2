// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/docqa/internal/provider"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

type statusBody struct {
	Status    string                    `json:"status"`
	Version   string                    `json:"version"`
	Providers []provider.ProviderStatus `json:"providers"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Check the running gateway's status endpoint and display provider health.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address to check")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	var body statusBody
	if err := newGatewayClient(addr).getJSON(commandContext(cmd), "/api/v1/status", &body); err != nil {
		if dqerr.HasCode(err, dqerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Gateway at %s: %s (version %s)\n", addr, body.Status, body.Version)
	for _, p := range body.Providers {
		state := "available"
		if !p.Available {
			state = "unavailable"
		}
		line := fmt.Sprintf("  %-12s %s", p.Provider, state)
		if p.Message != "" {
			line += ": " + p.Message
		}
		_, _ = fmt.Fprintln(out, line)
	}
	return nil
}
