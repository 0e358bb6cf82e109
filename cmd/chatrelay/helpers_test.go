// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/chatrelay/internal/completion"
	"github.com/sigil-dev/chatrelay/internal/completion/completiontest"
	"github.com/sigil-dev/chatrelay/internal/secrets"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

const testConfig = `
completion:
  backend: google
  api_key: test-completion-key-0001
  timeout: 5s
transport:
  telegram:
    token: "123456:test-bot-token"
networking:
  host: 127.0.0.1
  port: 18080
`

// mockSecretStore is an in-memory secrets.Store keyed by "service/key".
type mockSecretStore struct {
	data map[string]string
}

func newMockSecretStore() *mockSecretStore {
	return &mockSecretStore{data: make(map[string]string)}
}

func (m *mockSecretStore) Store(service, key, value string) error {
	if value == "" {
		return relayerr.New(relayerr.CodeSecretInvalidInput, "value must not be empty")
	}
	m.data[service+"/"+key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(service, key string) (string, error) {
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", relayerr.Errorf(relayerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return v, nil
}

func (m *mockSecretStore) Delete(service, key string) error {
	if _, ok := m.data[service+"/"+key]; !ok {
		return relayerr.Errorf(relayerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	delete(m.data, service+"/"+key)
	return nil
}

// isolate clears credential variables, points HOME at a temp dir, and
// installs an in-memory secret store.
func isolate(t *testing.T) *mockSecretStore {
	t.Helper()
	for _, name := range []string{
		"GEMINI_API_KEY", "MODEL_NAME", "TELEGRAM_BOT_TOKEN", "PORT",
		"CHATRELAY_COMPLETION_API_KEY", "CHATRELAY_COMPLETION_BACKEND", "CHATRELAY_COMPLETION_MODEL",
		"CHATRELAY_TRANSPORT_TELEGRAM_TOKEN", "CHATRELAY_NETWORKING_PORT", "CHATRELAY_SESSIONS_MEMORY",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("HOME", t.TempDir())

	store := newMockSecretStore()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return store }
	t.Cleanup(func() { secretStoreFactory = old })
	return store
}

func useFakeBackend(t *testing.T) *completiontest.Fake {
	t.Helper()
	fake := completiontest.NewFake()
	old := backendFactory
	backendFactory = func(context.Context, string, completion.Options) (completion.Client, error) {
		return fake, nil
	}
	t.Cleanup(func() { backendFactory = old })
	return fake
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the root command with the given stdin and arguments.
func execute(stdin string, args ...string) (stdout, stderr string, err error) {
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file="}, args...))

	err = root.Execute()
	return out.String(), errOut.String(), err
}
