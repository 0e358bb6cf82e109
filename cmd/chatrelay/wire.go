// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/sigil-dev/chatrelay/internal/completion"
	"github.com/sigil-dev/chatrelay/internal/completion/anthropic"
	"github.com/sigil-dev/chatrelay/internal/completion/google"
	"github.com/sigil-dev/chatrelay/internal/completion/openai"
	"github.com/sigil-dev/chatrelay/internal/config"
	"github.com/sigil-dev/chatrelay/internal/conversation"
	"github.com/sigil-dev/chatrelay/internal/session"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// backendFactory constructs a completion client. It is a package-level
// variable so tests can substitute a fake backend.
var backendFactory = newBackend

func newBackend(ctx context.Context, backend string, opts completion.Options) (completion.Client, error) {
	switch backend {
	case completion.BackendGoogle:
		c, err := google.New(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case completion.BackendOpenAI:
		c, err := openai.New(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	case completion.BackendAnthropic:
		c, err := anthropic.New(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, relayerr.Errorf(relayerr.CodeCompletionBackendNotFound, "unknown completion backend %q", backend)
	}
}

func completionOptions(cfg *config.Config) completion.Options {
	return completion.Options{
		APIKey:          cfg.Completion.APIKey,
		Model:           cfg.Completion.Model,
		BaseURL:         cfg.Completion.BaseURL,
		SystemPrompt:    cfg.Completion.SystemPrompt,
		MaxOutputTokens: cfg.Completion.MaxOutputTokens,
	}
}

// Relay holds the wired conversation pipeline.
type Relay struct {
	Client  *completion.Monitored
	Store   *session.Store   // nil in stateless mode
	Janitor *session.Janitor // nil when idle expiry is disabled
	Manager *conversation.Manager
}

// WireRelay builds the completion client, session store, and conversation
// manager described by cfg. memory overrides cfg.Sessions.Memory.
func WireRelay(ctx context.Context, cfg *config.Config, memory bool) (*Relay, error) {
	client, err := backendFactory(ctx, cfg.Completion.Backend, completionOptions(cfg))
	if err != nil {
		return nil, err
	}

	tracker, err := completion.NewHealthTracker(completion.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	monitored := completion.Monitor(client, tracker)

	r := &Relay{Client: monitored}
	if memory {
		r.Store = session.NewStore(monitored, session.Options{
			IdleTTL:       cfg.Sessions.IdleTTL,
			MaxEntries:    cfg.Sessions.MaxEntries,
			CreateTimeout: cfg.Completion.Timeout,
		})
		if cfg.Sessions.IdleTTL > 0 {
			r.Janitor = session.NewJanitor(r.Store, cfg.Sessions.CleanupInterval)
		}
	}
	r.Manager = conversation.NewManager(monitored, r.Store, conversation.Config{
		Memory:  memory,
		Timeout: cfg.Completion.Timeout,
	})

	slog.Info("completion client ready",
		"backend", monitored.Backend(),
		"model", monitored.Model(),
		"memory", memory,
	)
	return r, nil
}

// Close stops the manager's lanes.
func (r *Relay) Close() {
	r.Manager.Close()
}
