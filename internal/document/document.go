// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package document derives document identity and extracts page text from
// uploaded PDF files.
package document

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// HashLength is the number of hex characters kept from the content digest.
const HashLength = 12

// MaxUploadBytes is the default upper bound for an uploaded document.
const MaxUploadBytes int64 = 40 << 20

// Page is the extracted text of a single PDF page. Number is zero-based.
type Page struct {
	Number int
	Text   string
}

// Loader turns raw document bytes into pages of text.
type Loader interface {
	Load(ctx context.Context, data []byte) ([]Page, error)
}

// Hash returns the document identity: the MD5 digest of data, hex encoded
// and truncated to HashLength characters. Collisions are not detected.
func Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])[:HashLength]
}

// HashFile reads path and returns its document identity.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", dqerr.Wrapf(err, dqerr.CodeDocumentReadFailure, "reading %s", path)
	}
	return Hash(data), nil
}

// IsValidHash reports whether s has the shape of a document identity.
func IsValidHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

// CheckUpload enforces the accepted file type and size for an upload.
func CheckUpload(name string, size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return dqerr.New(dqerr.CodeDocumentTypeInvalid, "only .pdf files are accepted",
			dqerr.Field("file", name))
	}
	if size == 0 {
		return dqerr.New(dqerr.CodeDocumentEmptyInvalid, "file is empty", dqerr.Field("file", name))
	}
	if size > maxBytes {
		return dqerr.New(dqerr.CodeDocumentSizeExceeded,
			"file exceeds the upload limit",
			dqerr.Field("file", name),
			dqerr.Field("size", size),
			dqerr.Field("max_bytes", maxBytes),
		)
	}
	return nil
}
