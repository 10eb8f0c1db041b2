// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/sigil-dev/docqa/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// newCatalog opens a catalog in a temp directory that is removed after the test.
func newCatalog(t *testing.T) *sqlite.Catalog {
	t.Helper()
	c, err := sqlite.NewCatalog(filepath.Join(t.TempDir(), sqlite.CatalogFile))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
