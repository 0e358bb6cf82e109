// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/chatrelay/internal/completion"
)

const backendName = completion.BackendAnthropic

// defaultMaxTokens applies when Options.MaxOutputTokens is unset; the
// Messages API requires an explicit limit.
const defaultMaxTokens = 1024

var _ completion.Client = (*Client)(nil)

// Client implements completion.Client using the Anthropic Messages API.
type Client struct {
	client anthropicsdk.Client
	opts   completion.Options
}

type conversation struct {
	id string

	mu       sync.Mutex
	messages []anthropicsdk.MessageParam
}

func (c *conversation) ID() string { return c.id }

// New creates an Anthropic client. Returns a ServiceInitError if the API key
// is missing.
func New(opts completion.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, completion.InitError(nil, backendName, "anthropic: missing api_key in config")
	}
	if opts.Model == "" {
		opts.Model = completion.DefaultModel(backendName)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &Client{client: anthropicsdk.NewClient(reqOpts...), opts: opts}, nil
}

func (c *Client) Backend() string { return backendName }
func (c *Client) Model() string   { return c.opts.Model }

func (c *Client) CreateConversation(_ context.Context) (completion.Conversation, error) {
	return &conversation{id: completion.NewConversationID()}, nil
}

func (c *Client) SendTurn(ctx context.Context, conv completion.Conversation, prompt string) (string, error) {
	ac, ok := conv.(*conversation)
	if !ok {
		return "", completion.HandleError(backendName, conv)
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	msgs := make([]anthropicsdk.MessageParam, 0, len(ac.messages)+1)
	msgs = append(msgs, ac.messages...)
	msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)))

	reply, err := c.complete(ctx, msgs)
	if err != nil {
		return "", err
	}

	// The API rejects empty assistant turns, so an empty reply leaves the
	// user turn out of the history as well.
	if reply != "" {
		ac.messages = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(reply)))
	}
	return reply, nil
}

func (c *Client) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, []anthropicsdk.MessageParam{
		anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
	})
}

func (c *Client) complete(ctx context.Context, msgs []anthropicsdk.MessageParam) (string, error) {
	resp, err := c.client.Messages.New(ctx, buildParams(c.opts, msgs))
	if err != nil {
		return "", c.classify(err, "anthropic: creating message")
	}
	return messageText(resp), nil
}

func buildParams(opts completion.Options, msgs []anthropicsdk.MessageParam) anthropicsdk.MessageNewParams {
	maxTokens := int64(opts.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(opts.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: opts.SystemPrompt},
		}
	}
	return params
}

// messageText concatenates the text blocks of a response.
func messageText(msg *anthropicsdk.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (c *Client) classify(err error, msg string) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return completion.RemoteError(err, backendName, c.opts.Model, apiErr.StatusCode, msg)
	}
	return completion.UnexpectedError(err, backendName, c.opts.Model, msg)
}
