// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package completion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// Backend names accepted by configuration.
const (
	BackendGoogle    = "google"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// DefaultTimeout bounds a single remote call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// DefaultModel returns the model used by a backend when none is configured.
func DefaultModel(backend string) string {
	switch backend {
	case BackendOpenAI:
		return "gpt-4.1-mini"
	case BackendAnthropic:
		return "claude-sonnet-4-5"
	default:
		return "gemini-2.5-flash"
	}
}

// Conversation is an opaque, stateful multi-turn exchange with the completion
// service. Only the Client that created it may use it.
type Conversation interface {
	ID() string
}

// Client is the contract every completion backend implements. Clients never
// retry internally; failures are returned once and classified with
// IsServiceInit, IsRemoteAPI, or treated as unexpected.
type Client interface {
	Backend() string
	Model() string

	// CreateConversation returns a fresh conversation with empty context.
	CreateConversation(ctx context.Context) (Conversation, error)

	// SendTurn submits prompt as the next turn of conv. An empty reply with a
	// nil error means the service produced no content.
	SendTurn(ctx context.Context, conv Conversation, prompt string) (string, error)

	// GenerateOnce is the stateless single-turn variant.
	GenerateOnce(ctx context.Context, prompt string) (string, error)
}

// Options configures a backend client.
type Options struct {
	APIKey          string
	Model           string
	BaseURL         string // optional, useful for testing against a mock server
	SystemPrompt    string
	MaxOutputTokens int
}

// NewConversationID returns a unique identifier for a new conversation handle.
func NewConversationID() string {
	return uuid.NewString()
}

// InitError reports that the service could not be reached or authenticated
// while creating a client or a conversation.
func InitError(err error, backend, msg string) error {
	if err == nil {
		return relayerr.New(relayerr.CodeCompletionInitFailure, msg, relayerr.FieldBackend(backend))
	}
	return relayerr.Wrap(err, relayerr.CodeCompletionInitFailure, msg, relayerr.FieldBackend(backend))
}

// RemoteError reports that the remote service rejected a request.
func RemoteError(err error, backend, model string, status int, msg string) error {
	return relayerr.Wrap(err, relayerr.CodeCompletionRemoteRejected, msg,
		relayerr.FieldBackend(backend),
		relayerr.FieldModel(model),
		relayerr.FieldStatusCode(status),
	)
}

// UnexpectedError reports a network, serialization, or unclassified failure.
// Deadline expiry is tagged as a timeout.
func UnexpectedError(err error, backend, model, msg string) error {
	code := relayerr.CodeCompletionTurnFailure
	if errors.Is(err, context.DeadlineExceeded) {
		code = relayerr.CodeCompletionTurnTimeout
	}
	return relayerr.Wrap(err, code, msg, relayerr.FieldBackend(backend), relayerr.FieldModel(model))
}

// HandleError reports a conversation handle that was not created by this
// backend.
func HandleError(backend string, conv Conversation) error {
	return relayerr.Errorf(relayerr.CodeCompletionHandleInvalid,
		"%s: conversation handle %T was not created by this client", backend, conv)
}

// IsServiceInit reports whether err is a ServiceInitError.
func IsServiceInit(err error) bool {
	return relayerr.HasCode(err, relayerr.CodeCompletionInitFailure)
}

// IsRemoteAPI reports whether err is a RemoteAPIError.
func IsRemoteAPI(err error) bool {
	return relayerr.IsRejected(err)
}
