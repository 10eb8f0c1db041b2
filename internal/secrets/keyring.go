// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// indexName holds the JSON list of stored names, since go-keyring cannot
// enumerate entries.
const indexName = "::names"

var _ Store = (*Keyring)(nil)

// Keyring implements Store on the OS keyring via zalando/go-keyring: Keychain
// on macOS, secret-service over D-Bus on Linux, Credential Manager on Windows.
type Keyring struct {
	service string
}

// NewKeyring returns a Keyring for service, or DefaultService when empty.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultService
	}
	return &Keyring{service: service}
}

// Service returns the keyring service name.
func (k *Keyring) Service() string { return k.service }

func (k *Keyring) Set(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if value == "" {
		return dqerr.Errorf(dqerr.CodeSecretInputInvalid, "secret %q: value must not be empty", name)
	}

	if err := keyring.Set(k.service, name, value); err != nil {
		return dqerr.Wrapf(err, dqerr.CodeSecretStoreFailure, "storing secret %s/%s", k.service, name)
	}
	return k.updateIndex(func(names []string) []string {
		if slices.Contains(names, name) {
			return names
		}
		return append(names, name)
	})
}

func (k *Keyring) Get(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	val, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", dqerr.Errorf(dqerr.CodeSecretGetNotFound, "secret %s/%s not found", k.service, name)
	}
	if err != nil {
		return "", dqerr.Wrapf(err, dqerr.CodeSecretStoreFailure, "reading secret %s/%s", k.service, name)
	}
	return val, nil
}

func (k *Keyring) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	err := keyring.Delete(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return dqerr.Errorf(dqerr.CodeSecretGetNotFound, "secret %s/%s not found", k.service, name)
	}
	if err != nil {
		return dqerr.Wrapf(err, dqerr.CodeSecretDeleteFailure, "deleting secret %s/%s", k.service, name)
	}
	return k.updateIndex(func(names []string) []string {
		return slices.DeleteFunc(names, func(n string) bool { return n == name })
	})
}

func (k *Keyring) List() ([]string, error) {
	names, err := k.loadIndex()
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (k *Keyring) loadIndex() ([]string, error) {
	raw, err := keyring.Get(k.service, indexName)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeSecretListFailure, "loading secret index for %s", k.service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeSecretListFailure, "decoding secret index for %s", k.service)
	}
	return names, nil
}

func (k *Keyring) updateIndex(fn func([]string) []string) error {
	names, err := k.loadIndex()
	if err != nil {
		return err
	}
	names = fn(names)

	if len(names) == 0 {
		if err := keyring.Delete(k.service, indexName); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty secret index", "service", k.service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return dqerr.Wrapf(err, dqerr.CodeSecretListFailure, "encoding secret index for %s", k.service)
	}
	if err := keyring.Set(k.service, indexName, string(data)); err != nil {
		return dqerr.Wrapf(err, dqerr.CodeSecretListFailure, "saving secret index for %s", k.service)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name == indexName {
		return dqerr.Errorf(dqerr.CodeSecretInputInvalid, "invalid secret name %q", name)
	}
	return nil
}
