// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sigil-dev/chatrelay/internal/channel"
	"github.com/sigil-dev/chatrelay/internal/conversation"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// MaxMessageLength is the Bot API limit for a single text message.
const MaxMessageLength = 4096

// DefaultPollTimeout is the long-poll timeout when none is configured.
const DefaultPollTimeout = 30 * time.Second

// botAPI is the part of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Options configures the Telegram adapter.
type Options struct {
	Token       string
	PollTimeout time.Duration
	// APIBase overrides DefaultAPIBase, e.g. for a local Bot API server.
	APIBase    string
	HTTPClient *http.Client
}

// Adapter relays Telegram chats to a channel.Relay using long polling. Each
// Telegram chat is one conversation.
type Adapter struct {
	bot         botAPI
	relay       channel.Relay
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New connects to the Bot API. The token is verified with getMe; an invalid
// token fails with CodeChannelTokenInvalid.
func New(relay channel.Relay, opts Options) (*Adapter, error) {
	if opts.Token == "" {
		return nil, relayerr.New(relayerr.CodeChannelTokenInvalid, "telegram: missing bot token")
	}
	base := opts.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, strings.TrimSuffix(base, "/")+"/bot%s/%s", client)
	if err != nil {
		code := relayerr.CodeChannelBackendFailure
		if isUnauthorized(err) {
			code = relayerr.CodeChannelTokenInvalid
		}
		return nil, relayerr.Errorf(code, "telegram: connecting bot: %s", redact(err.Error(), opts.Token))
	}

	a := newAdapter(bot, relay, opts.PollTimeout)
	a.logger.Info("telegram bot connected", "username", bot.Self.UserName)
	return a, nil
}

func newAdapter(bot botAPI, relay channel.Relay, pollTimeout time.Duration) *Adapter {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Adapter{
		bot:         bot,
		relay:       relay,
		pollTimeout: pollTimeout,
		logger:      slog.Default().With("component", "channel.telegram"),
	}
}

// Run polls for updates until ctx is done. Updates are posted to the relay
// in the order Telegram delivers them.
func (a *Adapter) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(a.pollTimeout / time.Second)

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	a.logger.Info("telegram polling started", "poll_timeout", a.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("telegram polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			a.dispatch(ctx, upd)
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	ev := conversation.Event{ConversationID: strconv.FormatInt(chatID, 10)}

	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "start", "reset":
			ev.Kind = conversation.EventReset
		default:
			a.logger.Debug("ignoring command", "command", msg.Command(), "chat_id", chatID)
			return
		}
	case strings.TrimSpace(msg.Text) == "":
		// Stickers, photos, joins and other non-text updates.
		return
	default:
		ev.Kind = conversation.EventMessage
		ev.Text = msg.Text
		go a.sendTyping(chatID)
	}

	err := a.relay.Post(ctx, ev, func(_ context.Context, res conversation.Result) {
		a.reply(chatID, res.Text())
	})
	if err != nil {
		a.logger.Warn("dropping update", "chat_id", chatID, "update_id", upd.UpdateID, "error", err)
		if relayerr.HasCode(err, relayerr.CodeConversationLaneBusy) {
			// Sent off the polling loop so other chats keep flowing.
			go a.reply(chatID, conversation.BusyMessage)
		}
	}
}

func (a *Adapter) sendTyping(chatID int64) {
	if _, err := a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		a.logger.Debug("typing indicator failed", "chat_id", chatID, "error", err)
	}
}

func (a *Adapter) reply(chatID int64, text string) {
	for _, part := range SplitMessage(text, MaxMessageLength) {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			a.logger.Error("sending reply failed",
				"chat_id", chatID,
				"error", relayerr.Wrap(err, relayerr.CodeChannelSendFailure, "telegram: sending message"))
			return
		}
	}
}

// SplitMessage cuts text into parts of at most limit runes, preferring to
// break after a newline, then after a space. Empty text yields no parts.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		if i := lastIndex(runes[:limit], '\n'); i > 0 {
			cut = i + 1
		} else if i := lastIndex(runes[:limit], ' '); i > 0 {
			cut = i + 1
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func isUnauthorized(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "Unauthorized") || strings.Contains(err.Error(), "Not Found")
}
