// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/sigil-dev/chatrelay/internal/secrets"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func init() {
	// Use the mock keyring for all tests so they don't touch the real OS keyring.
	keyring.MockInit()
}

func TestKeyringStore_StoreAndRetrieve(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("test-store", "gemini-api-key", "AIza-secret"))

	val, err := ks.Retrieve("test-store", "gemini-api-key")
	require.NoError(t, err)
	assert.Equal(t, "AIza-secret", val)
}

func TestKeyringStore_NotFound(t *testing.T) {
	ks := secrets.NewKeyringStore()

	_, err := ks.Retrieve("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, relayerr.IsNotFound(err), "expected not found, got: %v", err)

	err = ks.Delete("no-such-service", "no-key")
	require.Error(t, err)
	assert.True(t, relayerr.HasCode(err, relayerr.CodeSecretNotFound))
}

func TestKeyringStore_Delete(t *testing.T) {
	ks := secrets.NewKeyringStore()

	require.NoError(t, ks.Store("test-delete", "temp", "value"))
	require.NoError(t, ks.Delete("test-delete", "temp"))

	_, err := ks.Retrieve("test-delete", "temp")
	assert.True(t, relayerr.HasCode(err, relayerr.CodeSecretNotFound))
}

func TestKeyringStore_InvalidInput(t *testing.T) {
	ks := secrets.NewKeyringStore()

	tests := []struct {
		name string
		call func() error
	}{
		{"store empty service", func() error { return ks.Store("", "k", "v") }},
		{"store empty key", func() error { return ks.Store("svc", "", "v") }},
		{"store empty value", func() error { return ks.Store("svc", "k", "") }},
		{"retrieve empty key", func() error { _, err := ks.Retrieve("svc", ""); return err }},
		{"delete empty service", func() error { return ks.Delete("", "k") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, relayerr.IsInvalidInput(err), "got %v", err)
		})
	}
}
