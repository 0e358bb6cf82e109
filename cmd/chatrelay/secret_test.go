// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

func TestSecretSet(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
		key   string
		want  string
	}{
		{
			name: "value argument",
			args: []string{"secret", "set", "gemini", "AIza-value"},
			key:  "chatrelay/gemini",
			want: "AIza-value",
		},
		{
			name:  "value from stdin",
			stdin: "tg-token\n",
			args:  []string{"secret", "set", "telegram"},
			key:   "chatrelay/telegram",
			want:  "tg-token",
		},
		{
			name:  "stdin without newline",
			stdin: "no-newline",
			args:  []string{"secret", "set", "telegram"},
			key:   "chatrelay/telegram",
			want:  "no-newline",
		},
		{
			name: "custom service",
			args: []string{"secret", "set", "--service", "ops", "gemini", "v"},
			key:  "ops/gemini",
			want: "v",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := isolate(t)

			out, _, err := execute(tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.data[tt.key])
			assert.Contains(t, out, "keyring://"+tt.key)
		})
	}
}

func TestSecretSet_EmptyValue(t *testing.T) {
	isolate(t)
	_, _, err := execute("", "secret", "set", "gemini")
	require.Error(t, err)
	assert.True(t, relayerr.HasCode(err, relayerr.CodeCLIInputInvalid), "got %s", relayerr.CodeOf(err))
}

func TestSecretDelete(t *testing.T) {
	store := isolate(t)
	store.data["chatrelay/gemini"] = "v"

	out, _, err := execute("", "secret", "delete", "gemini")
	require.NoError(t, err)
	assert.Equal(t, "Deleted secret: gemini\n", out)
	assert.Empty(t, store.data)
}

func TestSecretDelete_NotFound(t *testing.T) {
	isolate(t)
	_, _, err := execute("", "secret", "delete", "absent")
	require.Error(t, err)
	assert.True(t, relayerr.HasCode(err, relayerr.CodeSecretNotFound))
	assert.Contains(t, err.Error(), `"absent"`)
}

func TestSecretSet_ThenReferencedFromConfig(t *testing.T) {
	isolate(t)
	useFakeBackend(t)

	_, _, err := execute("", "secret", "set", "gemini", "stored-in-keyring-9876")
	require.NoError(t, err)

	cfg := writeConfig(t, "completion:\n  api_key: keyring://chatrelay/gemini\n")
	out, _, err := execute("", "ask", "--config", cfg, "hello")
	require.NoError(t, err)
	assert.Equal(t, "once: hello\n", out)
}
