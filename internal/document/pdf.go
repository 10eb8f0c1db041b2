// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// PDFLoader extracts plain text page by page.
type PDFLoader struct{}

// NewPDFLoader returns a loader backed by github.com/ledongthuc/pdf.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

// Load parses data as a PDF. Pages without text are skipped. The parser
// panics on some malformed inputs, which is reported as an invalid document.
func (l *PDFLoader) Load(ctx context.Context, data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = dqerr.Errorf(dqerr.CodeDocumentParseInvalid, "parsing pdf: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, dqerr.New(dqerr.CodeDocumentEmptyInvalid, "document is empty")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, dqerr.Wrap(err, dqerr.CodeDocumentParseInvalid, "opening pdf")
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable pdf page", "page", i-1, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pages = append(pages, Page{Number: i - 1, Text: text})
	}

	slog.Debug("pdf loaded", "pages", total, "pages_with_text", len(pages))
	return pages, nil
}

func (p Page) String() string {
	return fmt.Sprintf("page %d (%d chars)", p.Number, len([]rune(p.Text)))
}
