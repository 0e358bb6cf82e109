// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package conversation

import (
	"errors"
	"fmt"

	"github.com/sigil-dev/chatrelay/internal/completion"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// Kind classifies a failed turn.
type Kind int

const (
	// KindSessionCreateFailed means no handle could be obtained; nothing was
	// stored for the conversation.
	KindSessionCreateFailed Kind = iota + 1
	// KindEmptyGeneration means the service answered without content. The
	// session is intact.
	KindEmptyGeneration
	// KindRemoteRejected means the service refused the request, for example
	// on quota exhaustion. The session is intact.
	KindRemoteRejected
	// KindUnexpected covers network, timeout and unclassified failures. The
	// session is intact.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindSessionCreateFailed:
		return "session_create_failed"
	case KindEmptyGeneration:
		return "empty_generation"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure is the classified outcome of a turn that produced no reply.
type Failure struct {
	Kind           Kind
	ConversationID string
	Err            error // nil for KindEmptyGeneration
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("conversation %s: %s", f.ConversationID, f.Kind)
	}
	return fmt.Sprintf("conversation %s: %s: %v", f.ConversationID, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Classify maps any error onto a failure kind. Classification is exhaustive:
// every non-nil error yields a kind, unknown errors are KindUnexpected.
func Classify(err error) Kind {
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	switch {
	case completion.IsServiceInit(err), relayerr.HasCode(err, relayerr.CodeSessionCreateFailure):
		return KindSessionCreateFailed
	case completion.IsRemoteAPI(err):
		return KindRemoteRejected
	default:
		return KindUnexpected
	}
}

// Greeting is sent in answer to a reset command.
const Greeting = "Hi! I am a Gemini-based bot. I remember the conversation context. " +
	"Ask me anything! Use /start to reset memory."

// BusyMessage is sent when a conversation's backlog is full and a message
// was refused.
const BusyMessage = "I'm still working through your earlier messages. Please try again in a moment."

// UserMessage returns the text shown to the end user for a failure kind.
// Every kind has its own wording.
func UserMessage(kind Kind) string {
	switch kind {
	case KindSessionCreateFailed:
		return "Could not start a new chat session. Please try again later."
	case KindEmptyGeneration:
		return "Sorry, no answer was produced for that message. Try rephrasing it."
	case KindRemoteRejected:
		return "The language model service rejected the request, possibly because a limit was reached. Please try again later."
	default:
		return "An unexpected error occurred. Try splitting your request into smaller parts."
	}
}
