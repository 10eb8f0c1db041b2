// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the docqa gateway",
		Long:  "Load configuration, wire the pipeline, and serve the HTTP gateway until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := WireGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = gw.Close() }()

	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Starting docqa on %s\n", cfg.Networking.Listen); err != nil {
		return err
	}
	return gw.Start(ctx)
}

// commandContext returns the command context, or Background for commands
// run outside Execute in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
