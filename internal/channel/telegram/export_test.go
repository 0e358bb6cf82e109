// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import (
	"time"

	"github.com/sigil-dev/chatrelay/internal/channel"
)

// BotAPI exposes the bot seam for tests.
type BotAPI = botAPI

// NewWithBot builds an adapter around a fake bot.
func NewWithBot(bot BotAPI, relay channel.Relay, pollTimeout time.Duration) *Adapter {
	return newAdapter(bot, relay, pollTimeout)
}
