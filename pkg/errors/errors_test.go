// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := relayerr.New(
		relayerr.CodeConfigValidateInvalidValue,
		"invalid model configuration",
		relayerr.FieldConversationID("42"),
		relayerr.FieldBackend("google"),
	)

	require.Error(t, err)
	assert.Equal(t, relayerr.CodeConfigValidateInvalidValue, relayerr.CodeOf(err))
	assert.True(t, relayerr.HasCode(err, relayerr.CodeConfigValidateInvalidValue))

	fields := relayerr.FieldsOf(err)
	assert.Equal(t, "42", fields["conversation_id"])
	assert.Equal(t, "google", fields["backend"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("connection reset")
	err := relayerr.Errorf(relayerr.CodeCompletionTurnFailure, "sending turn: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, relayerr.CodeCompletionTurnFailure, relayerr.CodeOf(err))
	assert.Contains(t, err.Error(), "sending turn")
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("quota exhausted")
	err := relayerr.Wrap(
		root,
		relayerr.CodeCompletionRemoteRejected,
		"sending turn",
		relayerr.FieldModel("gemini-2.5-flash"),
		relayerr.FieldStatusCode(429),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, relayerr.IsRejected(err))
	assert.Equal(t, "gemini-2.5-flash", relayerr.FieldsOf(err)["model"])
	assert.Equal(t, 429, relayerr.FieldsOf(err)["status_code"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, relayerr.Wrap(nil, relayerr.CodeServerStartFailure, "ignored"))
	assert.NoError(t, relayerr.Wrapf(nil, relayerr.CodeServerStartFailure, "ignored %s", "arg"))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := relayerr.New(relayerr.CodeCompletionRemoteRejected, "rejected")
	outer := relayerr.Wrap(inner, relayerr.CodeServerStartFailure, "handler")
	assert.Equal(t, relayerr.CodeCompletionRemoteRejected, relayerr.CodeOf(outer))
}

func TestCodeOfPlainAndNil(t *testing.T) {
	assert.Equal(t, relayerr.Code(""), relayerr.CodeOf(nil))
	assert.Equal(t, relayerr.Code(""), relayerr.CodeOf(stderrors.New("plain")))
	assert.Nil(t, relayerr.FieldsOf(nil))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := relayerr.New(relayerr.CodeServerStartFailure, "oops",
		relayerr.Attr{Value: "should-be-dropped"},
		relayerr.FieldBackend("kept"),
	)
	fields := relayerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["backend"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	outer := relayerr.Wrap(fmt.Errorf("mid: %w", sentinel), relayerr.CodeServerStartFailure, "handler")
	assert.ErrorIs(t, outer, sentinel)
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassification(t *testing.T) {
	tests := []struct {
		name  string
		code  relayerr.Code
		check func(error) bool
	}{
		{name: "secret not found", code: relayerr.CodeSecretNotFound, check: relayerr.IsNotFound},
		{name: "backend not found", code: relayerr.CodeCompletionBackendNotFound, check: relayerr.IsNotFound},
		{name: "invalid value", code: relayerr.CodeConfigValidateInvalidValue, check: relayerr.IsInvalidInput},
		{name: "invalid format", code: relayerr.CodeConfigParseInvalidFormat, check: relayerr.IsInvalidInput},
		{name: "invalid cli input", code: relayerr.CodeCLIInputInvalid, check: relayerr.IsInvalidInput},
		{name: "invalid handle", code: relayerr.CodeCompletionHandleInvalid, check: relayerr.IsInvalidInput},
		{name: "token unauthorized", code: relayerr.CodeChannelTokenInvalid, check: relayerr.IsUnauthorized},
		{name: "remote rejected", code: relayerr.CodeCompletionRemoteRejected, check: relayerr.IsRejected},
		{name: "turn timeout", code: relayerr.CodeCompletionTurnTimeout, check: relayerr.IsTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(relayerr.New(tt.code, "boom")))
		})
	}
}

func TestClassificationOnPlainAndNilError(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain")} {
		assert.False(t, relayerr.IsNotFound(err))
		assert.False(t, relayerr.IsInvalidInput(err))
		assert.False(t, relayerr.IsUnauthorized(err))
		assert.False(t, relayerr.IsRejected(err))
		assert.False(t, relayerr.IsTimeout(err))
	}
}

func TestTimeoutIsNotRejection(t *testing.T) {
	err := relayerr.New(relayerr.CodeCompletionTurnTimeout, "deadline")
	assert.False(t, relayerr.IsRejected(err))
	assert.False(t, relayerr.IsInvalidInput(err))
}
