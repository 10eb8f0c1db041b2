// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List indexed documents",
		Long:    "List the documents known to a running gateway.",
		Args:    cobra.NoArgs,
		RunE:    runDocuments,
	}

	cmd.Flags().String("address", defaultGatewayAddr, "gateway address")
	cmd.Flags().StringP("output", "o", "table", "output format: table, json, or yaml")
	cmd.Flags().Int("limit", 50, "maximum number of documents")
	cmd.Flags().Int("offset", 0, "number of documents to skip")

	return cmd
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	format, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	switch format {
	case "table", "json", "yaml":
	default:
		return dqerr.New(dqerr.CodeCLIInputInvalid,
			fmt.Sprintf("unknown output format %q (want table, json, or yaml)", format))
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var body struct {
		Documents []*store.Document `json:"documents"`
	}
	if err := newGatewayClient(addr).getJSON(commandContext(cmd), "/api/v1/documents?"+q.Encode(), &body); err != nil {
		return err
	}
	return writeDocuments(cmd.OutOrStdout(), format, body.Documents)
}

func writeDocuments(w io.Writer, format string, docs []*store.Document) error {
	if docs == nil {
		docs = []*store.Document{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No documents indexed.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "HASH\tNAME\tPAGES\tCHUNKS\tSIZE\tINGESTED")
	for _, d := range docs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			d.Hash, d.Name, d.Pages, d.Chunks, formatBytes(uint64(max(d.SizeBytes, 0))),
			d.IngestedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
