// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/docqa/internal/config"
	"github.com/sigil-dev/docqa/internal/secrets"
	"github.com/sigil-dev/docqa/internal/store/sqlite"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

var doctorProviders = []string{"google", "openai", "anthropic"}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, gateway reachability, provider API keys, the data directory, and disk space.",
		RunE:  runDoctor,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")
	dataDir := resolveDataDir()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Gateway", func() string { return checkGateway(cmd, addr) }},
		{"Config", checkConfig},
		{"Providers", checkProviders},
		{"Rerank", checkRerank},
		{"Data Dir", func() string { return checkDataDir(dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveDataDir returns the data directory from viper or the default.
func resolveDataDir() string {
	dir := viper.GetString("storage.data_dir")
	if dir == "" {
		dir = "data"
	}
	return config.StorageConfig{DataDir: dir}.ResolvedDataDir()
}

func checkBinary() string {
	return fmt.Sprintf("docqa %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkGateway(cmd *cobra.Command, addr string) string {
	var body statusBody
	if err := newGatewayClient(addr).getJSON(commandContext(cmd), "/api/v1/status", &body); err != nil {
		if dqerr.HasCode(err, dqerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'docqa start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

// checkProviders reports which model providers have credentials. Keyring
// references are reported without being resolved.
func checkProviders() string {
	var parts []string
	for _, name := range doctorProviders {
		key := viper.GetString("providers." + name + ".api_key")
		switch {
		case key == "":
			continue
		case secrets.IsKeyringURI(key):
			parts = append(parts, name+" (keyring)")
		default:
			parts = append(parts, name+" ("+secrets.Mask(key)+")")
		}
	}
	def := viper.GetString("models.default")
	if len(parts) == 0 {
		return fmt.Sprintf("no API keys configured (default model %s)", def)
	}
	return fmt.Sprintf("%s; default model %s", strings.Join(parts, ", "), def)
}

func checkRerank() string {
	p := viper.GetString("rerank.provider")
	if p == "" || p == "none" {
		return "disabled"
	}
	if viper.GetString("rerank.api_key") == "" {
		return fmt.Sprintf("%s: no API key (set rerank.api_key or rerank.provider none)", p)
	}
	return fmt.Sprintf("%s (%s)", p, viper.GetString("rerank.model"))
}

func checkDataDir(dataDir string) string {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%s does not exist yet (created on first run)", dataDir)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("%s is not a directory", dataDir)
	}
	catalog := filepath.Join(dataDir, sqlite.CatalogFile)
	st, err := os.Stat(catalog)
	if err != nil {
		return fmt.Sprintf("%s (no catalog yet)", dataDir)
	}
	return fmt.Sprintf("%s (catalog %s)", dataDir, formatBytes(uint64(st.Size())))
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
		kb = 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
