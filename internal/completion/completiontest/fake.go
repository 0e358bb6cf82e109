// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package completiontest provides a scriptable in-memory completion.Client
// for tests.
package completiontest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/chatrelay/internal/completion"
)

var _ completion.Client = (*Fake)(nil)

// Conversation is the handle type produced by Fake. Seq is a per-client
// creation counter, so tests can tell handles apart.
type Conversation struct {
	Seq     int64
	id      string
	mu      sync.Mutex
	history []string
}

func (c *Conversation) ID() string { return c.id }

// History returns the prompts accepted on this conversation.
func (c *Conversation) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// Call records a SendTurn or GenerateOnce invocation.
type Call struct {
	Conversation *Conversation // nil for GenerateOnce
	Prompt       string
}

// Fake is a test implementation of completion.Client. By default it echoes
// prompts as "echo: <prompt>".
type Fake struct {
	// CreateFunc, SendFunc and GenerateFunc override the default behavior.
	CreateFunc   func(ctx context.Context) error
	SendFunc     func(ctx context.Context, conv *Conversation, prompt string) (string, error)
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// CreateDelay slows down CreateConversation to widen race windows.
	CreateDelay time.Duration

	seq     atomic.Int64
	creates atomic.Int64

	mu    sync.Mutex
	calls []Call
}

// NewFake returns an echoing Fake.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Backend() string { return "fake" }
func (f *Fake) Model() string   { return "fake-model" }

func (f *Fake) CreateConversation(ctx context.Context) (completion.Conversation, error) {
	if f.CreateDelay > 0 {
		select {
		case <-time.After(f.CreateDelay):
		case <-ctx.Done():
			return nil, completion.UnexpectedError(ctx.Err(), "fake", f.Model(), "creating conversation")
		}
	}
	if f.CreateFunc != nil {
		if err := f.CreateFunc(ctx); err != nil {
			return nil, err
		}
	}
	f.creates.Add(1)
	seq := f.seq.Add(1)
	return &Conversation{Seq: seq, id: fmt.Sprintf("fake-%d", seq)}, nil
}

func (f *Fake) SendTurn(ctx context.Context, conv completion.Conversation, prompt string) (string, error) {
	c, ok := conv.(*Conversation)
	if !ok {
		return "", completion.HandleError("fake", conv)
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Conversation: c, Prompt: prompt})
	f.mu.Unlock()

	var (
		reply string
		err   error
	)
	if f.SendFunc != nil {
		reply, err = f.SendFunc(ctx, c, prompt)
	} else {
		reply = "echo: " + prompt
	}
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.history = append(c.history, prompt)
	c.mu.Unlock()
	return reply, nil
}

func (f *Fake) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt})
	f.mu.Unlock()

	if f.GenerateFunc != nil {
		return f.GenerateFunc(ctx, prompt)
	}
	return "once: " + prompt, nil
}

// Creates returns the number of successfully created conversations.
func (f *Fake) Creates() int {
	return int(f.creates.Load())
}

// Calls returns a copy of the recorded turn calls in arrival order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Prompts returns the prompts of the recorded calls in arrival order.
func (f *Fake) Prompts() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Prompt)
	}
	return out
}

// Transcript renders the recorded calls as "seq:prompt" lines, handy in
// assertion messages.
func (f *Fake) Transcript() string {
	var b strings.Builder
	for _, c := range f.Calls() {
		seq := int64(0)
		if c.Conversation != nil {
			seq = c.Conversation.Seq
		}
		fmt.Fprintf(&b, "%d:%s\n", seq, c.Prompt)
	}
	return b.String()
}
