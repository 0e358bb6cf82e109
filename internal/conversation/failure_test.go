// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sigil-dev/chatrelay/internal/completion"
	"github.com/sigil-dev/chatrelay/internal/conversation"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want conversation.Kind
	}{
		{
			name: "service init",
			err:  completion.InitError(errors.New("401"), "google", "creating chat"),
			want: conversation.KindSessionCreateFailed,
		},
		{
			name: "session create wrapper",
			err:  relayerr.Wrap(context.Canceled, relayerr.CodeSessionCreateFailure, "waiting"),
			want: conversation.KindSessionCreateFailed,
		},
		{
			name: "remote rejection",
			err:  completion.RemoteError(errors.New("quota"), "google", "test-model", 429, "sending"),
			want: conversation.KindRemoteRejected,
		},
		{
			name: "timeout",
			err:  completion.UnexpectedError(context.DeadlineExceeded, "google", "test-model", "sending"),
			want: conversation.KindUnexpected,
		},
		{
			name: "plain error",
			err:  errors.New("connection reset"),
			want: conversation.KindUnexpected,
		},
		{
			name: "wrapped failure keeps its kind",
			err:  fmt.Errorf("relay: %w", &conversation.Failure{Kind: conversation.KindEmptyGeneration, ConversationID: "42"}),
			want: conversation.KindEmptyGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conversation.Classify(tt.err))
		})
	}
}

func TestFailure_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	f := &conversation.Failure{Kind: conversation.KindUnexpected, ConversationID: "42", Err: cause}

	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "42")
	assert.Contains(t, f.Error(), "unexpected")

	empty := &conversation.Failure{Kind: conversation.KindEmptyGeneration, ConversationID: "7"}
	assert.Equal(t, "conversation 7: empty_generation", empty.Error())
	assert.NoError(t, empty.Unwrap())
}

func TestUserMessage_DistinctPerKind(t *testing.T) {
	kinds := []conversation.Kind{
		conversation.KindSessionCreateFailed,
		conversation.KindEmptyGeneration,
		conversation.KindRemoteRejected,
		conversation.KindUnexpected,
	}

	seen := make(map[string]conversation.Kind)
	for _, k := range kinds {
		msg := conversation.UserMessage(k)
		assert.NotEmpty(t, msg, k.String())
		if prev, dup := seen[msg]; dup {
			t.Errorf("%s and %s share wording %q", prev, k, msg)
		}
		seen[msg] = k
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "remote_rejected", conversation.KindRemoteRejected.String())
	assert.Equal(t, "kind(99)", conversation.Kind(99).String())
}
