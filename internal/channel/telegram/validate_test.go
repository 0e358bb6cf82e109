// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/getMe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"id": 123, "is_bot": true, "username": "relay_bot"},
		})
	}))
	defer srv.Close()

	me, err := ValidateToken(context.Background(), srv.Client(), srv.URL+"/", "test-token")
	require.NoError(t, err)
	assert.Equal(t, int64(123), me.ID)
	assert.Equal(t, "relay_bot", me.Username)
}

func TestValidateToken_Failures(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   relayerr.Code
	}{
		{"401 unauthorized", http.StatusUnauthorized, "", relayerr.CodeChannelTokenInvalid},
		{"403 forbidden", http.StatusForbidden, "", relayerr.CodeChannelTokenInvalid},
		{"404 unknown bot", http.StatusNotFound, "", relayerr.CodeChannelTokenInvalid},
		{"500 server error", http.StatusInternalServerError, "", relayerr.CodeChannelTokenCheckFailed},
		{"not ok", http.StatusOK, `{"ok":false,"description":"Unauthorized"}`, relayerr.CodeChannelTokenInvalid},
		{"garbage body", http.StatusOK, `<html>`, relayerr.CodeChannelTokenCheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := ValidateToken(context.Background(), srv.Client(), srv.URL, "bad-token")
			require.Error(t, err)
			assert.True(t, relayerr.HasCode(err, tt.wantCode),
				"expected %s, got %s", tt.wantCode, relayerr.CodeOf(err))
		})
	}
}

func TestValidateToken_EmptyToken(t *testing.T) {
	_, err := ValidateToken(context.Background(), http.DefaultClient, "", "")
	require.Error(t, err)
	assert.True(t, relayerr.IsUnauthorized(err))
}

func TestValidateToken_NetworkErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := ValidateToken(context.Background(), http.DefaultClient, base, "123:secret-token")
	require.Error(t, err)
	assert.True(t, relayerr.HasCode(err, relayerr.CodeChannelTokenCheckFailed))
	assert.NotContains(t, err.Error(), "secret-token")
}
