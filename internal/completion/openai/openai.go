// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"errors"
	"sync"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/chatrelay/internal/completion"
)

const backendName = completion.BackendOpenAI

var _ completion.Client = (*Client)(nil)

// Client implements completion.Client on the OpenAI Chat Completions API.
// The API is stateless, so a conversation carries its accepted turns and
// replays them on every request.
type Client struct {
	client openaisdk.Client
	opts   completion.Options
}

type conversation struct {
	id string

	mu       sync.Mutex
	messages []openaisdk.ChatCompletionMessageParamUnion
}

func (c *conversation) ID() string { return c.id }

// New creates an OpenAI client. Returns a ServiceInitError if the API key is
// missing. SDK retries are disabled; retry policy belongs to the caller.
func New(opts completion.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, completion.InitError(nil, backendName, "openai: missing api_key in config")
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

	return &Client{client: openaisdk.NewClient(reqOpts...), opts: opts}, nil
}

func (c *Client) Backend() string { return backendName }
func (c *Client) Model() string   { return c.opts.Model }

func (c *Client) CreateConversation(_ context.Context) (completion.Conversation, error) {
	conv := &conversation{id: completion.NewConversationID()}
	if c.opts.SystemPrompt != "" {
		conv.messages = append(conv.messages, openaisdk.SystemMessage(c.opts.SystemPrompt))
	}
	return conv, nil
}

func (c *Client) SendTurn(ctx context.Context, conv completion.Conversation, prompt string) (string, error) {
	oc, ok := conv.(*conversation)
	if !ok {
		return "", completion.HandleError(backendName, conv)
	}

	oc.mu.Lock()
	defer oc.mu.Unlock()

	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(oc.messages)+1)
	msgs = append(msgs, oc.messages...)
	msgs = append(msgs, openaisdk.UserMessage(prompt))

	reply, err := c.complete(ctx, msgs)
	if err != nil {
		return "", err
	}

	// Only completed turns join the history.
	oc.messages = append(msgs, openaisdk.AssistantMessage(reply))
	return reply, nil
}

func (c *Client) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if c.opts.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(c.opts.SystemPrompt))
	}
	msgs = append(msgs, openaisdk.UserMessage(prompt))
	return c.complete(ctx, msgs)
}

func (c *Client) complete(ctx context.Context, msgs []openaisdk.ChatCompletionMessageParamUnion) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.opts.Model),
		Messages: msgs,
	}
	if c.opts.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(c.opts.MaxOutputTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", c.classify(err, "openai: creating chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps an SDK error onto the completion failure taxonomy.
func (c *Client) classify(err error, msg string) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return completion.RemoteError(err, backendName, c.opts.Model, apiErr.StatusCode, msg)
	}
	return completion.UnexpectedError(err, backendName, c.opts.Model, msg)
}
