// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// DefaultAPIBase is the public Bot API host.
const DefaultAPIBase = "https://api.telegram.org"

// BotIdentity is the subset of getMe used for diagnostics.
type BotIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type getMeResponse struct {
	OK          bool        `json:"ok"`
	Description string      `json:"description"`
	Result      BotIdentity `json:"result"`
}

// ValidateToken calls getMe on apiBase (DefaultAPIBase when empty) to verify
// the bot token. The token never appears in returned errors.
func ValidateToken(ctx context.Context, client *http.Client, apiBase, token string) (BotIdentity, error) {
	if token == "" {
		return BotIdentity{}, relayerr.New(relayerr.CodeChannelTokenInvalid, "Telegram bot token is empty")
	}
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	url := strings.TrimSuffix(apiBase, "/") + "/bot" + token + "/getMe"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return BotIdentity{}, relayerr.New(relayerr.CodeChannelTokenCheckFailed, "building Telegram validation request")
	}

	resp, err := client.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, which contains the token.
		return BotIdentity{}, relayerr.Errorf(relayerr.CodeChannelTokenCheckFailed,
			"validating Telegram token: %s", redact(err.Error(), token))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return BotIdentity{}, relayerr.Errorf(relayerr.CodeChannelTokenInvalid, "invalid Telegram bot token (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return BotIdentity{}, relayerr.Errorf(relayerr.CodeChannelTokenCheckFailed, "Telegram validation failed (HTTP %d)", resp.StatusCode)
	}

	var body getMeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return BotIdentity{}, relayerr.Errorf(relayerr.CodeChannelTokenCheckFailed, "decoding getMe response: %w", err)
	}
	if !body.OK {
		return BotIdentity{}, relayerr.Errorf(relayerr.CodeChannelTokenInvalid, "getMe rejected: %s", body.Description)
	}
	return body.Result, nil
}

func redact(s, token string) string {
	return strings.ReplaceAll(s, token, "<token>")
}
