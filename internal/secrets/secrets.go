// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps API keys out of the config file. Keys live in the OS
// keyring and config values reference them as keyring://<service>/<name>.
package secrets

// DefaultService is the keyring service docqa stores its keys under.
const DefaultService = "docqa"

// Store holds named secrets for one keyring service.
type Store interface {
	// Set saves value under name, replacing any existing value.
	Set(name, value string) error

	// Get returns the value stored under name. A missing name yields
	// CodeSecretGetNotFound.
	Get(name string) (string, error)

	// Delete removes name. A missing name yields CodeSecretGetNotFound.
	Delete(name string) error

	// List returns the stored names in sorted order.
	List() ([]string, error)
}

// Lookup fetches a secret by keyring service and name.
type Lookup func(service, name string) (string, error)

// KeyringLookup reads secrets straight from the OS keyring.
func KeyringLookup(service, name string) (string, error) {
	return NewKeyring(service).Get(name)
}

// Mask hides all but the last four characters of a secret for display.
func Mask(value string) string {
	const visible = 4
	if len(value) <= visible {
		return "****"
	}
	return "****" + value[len(value)-visible:]
}
