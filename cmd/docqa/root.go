// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/docqa/internal/config"
	"github.com/sigil-dev/docqa/internal/secrets"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// secretLookup resolves keyring:// config values. Tests swap it for a map.
var secretLookup secrets.Lookup = secrets.KeyringLookup

// NewRootCmd creates the root docqa command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docqa",
		Short:         "docqa: ask questions about your PDF documents",
		Long:          "docqa indexes PDF documents into a vector store and answers questions about them with a language model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), viper.GetBool("verbose"))
			return nil
		},
	}

	// Global flags map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(),
		newIngestCmd(),
		newAskCmd(),
		newChatCmd(),
		newDocumentsCmd(),
		newStatusCmd(),
		newDoctorCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return dqerr.Errorf(dqerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset: with it, Viper also tries the bare
		// name, which matches the ./docqa binary.
		v.SetConfigName("docqa")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/docqa")
		v.AddConfigPath("/etc/docqa")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return dqerr.Errorf(dqerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return dqerr.Errorf(dqerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("storage.data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return dqerr.Errorf(dqerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return dqerr.Errorf(dqerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves keyring references and decodes the merged
// configuration. Secrets that fail to resolve are logged; the component
// that needs them reports the missing key.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	for _, err := range secrets.ResolveViperSecrets(v, secretLookup) {
		slog.Warn("resolving secret", "error", err)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if f := v.ConfigFileUsed(); f != "" {
		config.WarnInsecurePermissions(f)
	}
	return cfg, nil
}
