// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/docqa/internal/store"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// CatalogFile is the database file name created inside the data directory.
const CatalogFile = "catalog.db"

func init() {
	store.RegisterBackend("sqlite", newStores)
}

func newStores(dataPath string) (store.Stores, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeStoreDatabaseFailure, "creating data directory %s", dataPath)
	}
	return NewCatalog(filepath.Join(dataPath, CatalogFile))
}
