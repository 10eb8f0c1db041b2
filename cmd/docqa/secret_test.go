// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/docqa/internal/secrets"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Set(name, value string) error {
	m.data[name] = value
	return nil
}

func (m *mockSecretStore) Get(name string) (string, error) {
	v, ok := m.data[name]
	if !ok {
		return "", dqerr.Errorf(dqerr.CodeSecretGetNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(name string) error {
	if _, ok := m.data[name]; !ok {
		return dqerr.Errorf(dqerr.CodeSecretGetNotFound, "not found")
	}
	delete(m.data, name)
	return nil
}

func (m *mockSecretStore) List() ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func useMockSecrets(t *testing.T, mock *mockSecretStore) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return mock }
	t.Cleanup(func() { secretStoreFactory = orig })
}

func TestSecretSet(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		stdin    string
		wantVal  string
		wantCode dqerr.Code
	}{
		{
			name:    "value flag",
			args:    []string{"secret", "set", "cohere_api_key", "--value", "co-abcdef1234"},
			wantVal: "co-abcdef1234",
		},
		{
			name:    "stdin",
			args:    []string{"secret", "set", "google_api_key"},
			stdin:   "AIza-key-9876\n",
			wantVal: "AIza-key-9876",
		},
		{
			name:     "empty stdin",
			args:     []string{"secret", "set", "google_api_key"},
			stdin:    "\n",
			wantCode: dqerr.CodeSecretInputInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockSecretStore()
			useMockSecrets(t, mock)
			isolate(t)

			root := NewRootCmd()
			out := new(strings.Builder)
			root.SetOut(out)
			root.SetErr(out)
			root.SetIn(strings.NewReader(tt.stdin))
			root.SetArgs(tt.args)

			err := root.Execute()
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, dqerr.HasCode(err, tt.wantCode), "got %s", dqerr.CodeOf(err))
				assert.Empty(t, mock.data)
				return
			}
			require.NoError(t, err)
			name := tt.args[2]
			assert.Equal(t, tt.wantVal, mock.data[name])
			assert.Contains(t, out.String(), "keyring://docqa/"+name)
			assert.NotContains(t, out.String(), tt.wantVal, "secret must be masked in output")
		})
	}
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{name: "empty store", want: "No secrets stored.\n"},
		{name: "single key", keys: []string{"cohere_api_key"}, want: "cohere_api_key\n"},
		{name: "multiple keys", keys: []string{"openai_api_key", "google_api_key"}, want: "google_api_key\nopenai_api_key\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useMockSecrets(t, newMockSecretStore(tt.keys...))

			out, _, err := execute(t, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSecretDelete(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		deleteKey  string
		wantOutput string
		wantCode   dqerr.Code
	}{
		{
			name:       "delete existing key",
			keys:       []string{"cohere_api_key"},
			deleteKey:  "cohere_api_key",
			wantOutput: "Deleted secret: cohere_api_key\n",
		},
		{
			name:      "delete non-existent key",
			deleteKey: "missing-key",
			wantCode:  dqerr.CodeSecretGetNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockSecretStore(tt.keys...)
			useMockSecrets(t, mock)

			out, _, err := execute(t, "secret", "delete", tt.deleteKey)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, dqerr.HasCode(err, tt.wantCode),
					"expected error code %s, got: %v", tt.wantCode, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutput, out)
			assert.NotContains(t, mock.data, tt.deleteKey)
		})
	}
}
