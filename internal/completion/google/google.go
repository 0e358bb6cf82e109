// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/sigil-dev/chatrelay/internal/completion"
)

const backendName = completion.BackendGoogle

var _ completion.Client = (*Client)(nil)

// Client implements completion.Client on the Gemini API. Conversations are
// genai chat sessions, which keep the turn history for the service.
type Client struct {
	client *genai.Client
	opts   completion.Options
}

type conversation struct {
	id   string
	chat *genai.Chat
}

func (c *conversation) ID() string { return c.id }

// New creates a Gemini client. A missing API key or a client that cannot be
// constructed is a ServiceInitError.
func New(ctx context.Context, opts completion.Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, completion.InitError(nil, backendName, "google: missing api_key in config")
	}
	if opts.Model == "" {
		opts.Model = completion.DefaultModel(backendName)
	}

	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, completion.InitError(err, backendName, "google: creating client")
	}

	return &Client{client: client, opts: opts}, nil
}

func (c *Client) Backend() string { return backendName }
func (c *Client) Model() string   { return c.opts.Model }

func (c *Client) CreateConversation(ctx context.Context) (completion.Conversation, error) {
	chat, err := c.client.Chats.Create(ctx, c.opts.Model, buildConfig(c.opts), nil)
	if err != nil {
		return nil, completion.InitError(err, backendName, "google: creating chat session")
	}
	return &conversation{id: completion.NewConversationID(), chat: chat}, nil
}

func (c *Client) SendTurn(ctx context.Context, conv completion.Conversation, prompt string) (string, error) {
	gc, ok := conv.(*conversation)
	if !ok || gc.chat == nil {
		return "", completion.HandleError(backendName, conv)
	}

	resp, err := gc.chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", c.classify(err, "google: sending chat message")
	}
	return responseText(resp), nil
}

func (c *Client) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, genai.Text(prompt), buildConfig(c.opts))
	if err != nil {
		return "", c.classify(err, "google: generating content")
	}
	return responseText(resp), nil
}

// buildConfig converts client options into a genai.GenerateContentConfig.
// Returns nil when nothing is configured so the service defaults apply.
func buildConfig(opts completion.Options) *genai.GenerateContentConfig {
	if opts.SystemPrompt == "" && opts.MaxOutputTokens <= 0 {
		return nil
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemPrompt}},
		}
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	return cfg
}

// responseText joins the text parts of the first candidate. Blocked prompts
// and candidates without text yield "".
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// classify maps a genai error onto the completion failure taxonomy.
func (c *Client) classify(err error, msg string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return completion.RemoteError(err, backendName, c.opts.Model, apiErr.Code, msg)
	}
	return completion.UnexpectedError(err, backendName, c.opts.Model, msg)
}
