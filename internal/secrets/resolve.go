// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	"github.com/spf13/viper"

	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

const keyringScheme = "keyring://"

// URI returns the config reference for name under DefaultService.
func URI(name string) string {
	return keyringScheme + DefaultService + "/" + name
}

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and name from keyring://service/name.
func ParseKeyringURI(uri string) (service, name string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", dqerr.Errorf(dqerr.CodeSecretInputInvalid, "not a keyring URI: %q", uri)
	}

	service, name, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || name == "" {
		return "", "", dqerr.Errorf(dqerr.CodeSecretInputInvalid,
			"invalid keyring URI %q: expected keyring://service/name", uri)
	}
	return service, name, nil
}

// Resolve returns the secret a keyring:// value points at. Other values are
// returned unchanged.
func Resolve(lookup Lookup, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, name, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := lookup(service, name)
	if err != nil {
		return "", dqerr.Wrapf(err, dqerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// string in v with the secret
// it names. Values that fail to resolve are left in place and reported, so
// the component that needs the key fails with a clear error later.
func ResolveViperSecrets(v *viper.Viper, lookup Lookup) []error {
	var errs []error
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsKeyringURI(val) {
			continue
		}

		resolved, err := Resolve(lookup, val)
		if err != nil {
			errs = append(errs, dqerr.With(err, dqerr.Field("config_key", key)))
			continue
		}
		v.Set(key, resolved)
	}
	return errs
}
