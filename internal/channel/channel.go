// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package channel holds what transport adapters share.
package channel

import (
	"context"

	"github.com/sigil-dev/chatrelay/internal/conversation"
)

// Relay accepts inbound events from a transport. conversation.Manager
// implements it.
type Relay interface {
	Post(ctx context.Context, ev conversation.Event, deliver func(context.Context, conversation.Result)) error
}

var _ Relay = (*conversation.Manager)(nil)
