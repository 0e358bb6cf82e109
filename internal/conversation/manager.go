// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package conversation

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/chatrelay/internal/completion"
	"github.com/sigil-dev/chatrelay/internal/session"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// EventKind distinguishes inbound transport events.
type EventKind int

const (
	EventMessage EventKind = iota
	EventReset
)

// Event is an inbound event for one conversation.
type Event struct {
	ConversationID string
	Kind           EventKind
	Text           string
}

// Result is the outcome of a posted event.
type Result struct {
	Event Event
	Reply string
	Err   error // *Failure for failed messages, nil otherwise
}

// Text returns what should be sent back to the user: the reply, the wording
// for a failure, or the greeting after a reset.
func (r Result) Text() string {
	if r.Event.Kind == EventReset {
		return Greeting
	}
	if r.Err != nil {
		return UserMessage(Classify(r.Err))
	}
	return r.Reply
}

// Config tunes a Manager.
type Config struct {
	// Memory keeps a session per conversation. When false every message is
	// answered with a stateless GenerateOnce call and the store is unused.
	Memory bool
	// Timeout bounds each call to the completion service.
	Timeout time.Duration
}

// Stats counts turn outcomes since start.
type Stats struct {
	Turns                 int64 `json:"turns"`
	Replies               int64 `json:"replies"`
	EmptyGenerations      int64 `json:"empty_generations"`
	RemoteRejections      int64 `json:"remote_rejections"`
	Unexpected            int64 `json:"unexpected"`
	Timeouts              int64 `json:"timeouts"`
	SessionCreateFailures int64 `json:"session_create_failures"`
	Resets                int64 `json:"resets"`
	Busy                  int64 `json:"busy"`
	Sessions              int   `json:"sessions"`
}

type counters struct {
	turns, replies, empty, rejected, unexpected, timeouts, createFailed, resets, busy atomic.Int64
}

// Manager relays prompts to the completion service. Events for one
// conversation run strictly in arrival order on that conversation's lane;
// different conversations run in parallel.
type Manager struct {
	client completion.Client
	store  *session.Store
	lanes  *LanePool
	cfg    Config
	logger *slog.Logger
	stats  counters
}

// NewManager returns a Manager. store may be nil when cfg.Memory is false.
func NewManager(client completion.Client, store *session.Store, cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = completion.DefaultTimeout
	}
	if store == nil {
		cfg.Memory = false
	}
	return &Manager{
		client: client,
		store:  store,
		lanes:  NewLanePool(),
		cfg:    cfg,
		logger: slog.Default().With("component", "conversation.manager"),
	}
}

// HandleMessage sends prompt as the next turn of conversation id and waits for
// the reply. A non-empty reply is returned verbatim; every other outcome is a
// *Failure. The session survives failed turns.
func (m *Manager) HandleMessage(ctx context.Context, id, prompt string) (string, error) {
	if err := validate(id, prompt); err != nil {
		return "", err
	}

	var reply string
	err := m.submit(ctx, id, func(ctx context.Context) error {
		var err error
		reply, err = m.turn(ctx, id, prompt)
		return err
	})
	if err != nil {
		if _, ok := AsFailure(err); !ok {
			err = &Failure{Kind: KindUnexpected, ConversationID: id, Err: err}
		}
		return "", err
	}
	return reply, nil
}

// Reset discards the session of conversation id. It is ordered with the
// conversation's turns and is a no-op for unknown ids.
func (m *Manager) Reset(ctx context.Context, id string) error {
	if id == "" {
		return relayerr.New(relayerr.CodeConversationInvalidInput, "conversation id is empty")
	}
	return m.submit(ctx, id, func(context.Context) error {
		m.reset(id)
		return nil
	})
}

// Post queues ev on its conversation's lane and returns without waiting. If
// the conversation's backlog is full the event is refused with
// CodeConversationLaneBusy; other conversations are unaffected. deliver runs
// on the lane after the event is handled, so replies for one conversation are
// delivered in arrival order too. deliver is not called if ctx ends before
// the event runs.
func (m *Manager) Post(ctx context.Context, ev Event, deliver func(context.Context, Result)) error {
	if ev.Kind == EventMessage {
		if err := validate(ev.ConversationID, ev.Text); err != nil {
			return err
		}
	} else if ev.ConversationID == "" {
		return relayerr.New(relayerr.CodeConversationInvalidInput, "conversation id is empty")
	}

	lane, err := m.lanes.Acquire(ev.ConversationID)
	if err != nil {
		return err
	}

	w := workItem{
		ctx:   ctx,
		after: func() { m.lanes.Release(ev.ConversationID) },
		fn: func(ctx context.Context) error {
			res := Result{Event: ev}
			switch ev.Kind {
			case EventReset:
				m.reset(ev.ConversationID)
			default:
				res.Reply, res.Err = m.turn(ctx, ev.ConversationID, ev.Text)
			}
			if deliver != nil {
				deliver(ctx, res)
			}
			return nil
		},
	}
	if err := lane.tryEnqueue(w); err != nil {
		m.lanes.Release(ev.ConversationID)
		if relayerr.HasCode(err, relayerr.CodeConversationLaneBusy) {
			m.stats.busy.Add(1)
			m.logger.Warn("conversation backlog full, event refused", "conversation_id", ev.ConversationID)
		}
		return err
	}
	return nil
}

// Stats returns a snapshot of the outcome counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Turns:                 m.stats.turns.Load(),
		Replies:               m.stats.replies.Load(),
		EmptyGenerations:      m.stats.empty.Load(),
		RemoteRejections:      m.stats.rejected.Load(),
		Unexpected:            m.stats.unexpected.Load(),
		Timeouts:              m.stats.timeouts.Load(),
		SessionCreateFailures: m.stats.createFailed.Load(),
		Resets:                m.stats.resets.Load(),
		Busy:                  m.stats.busy.Load(),
	}
	if m.store != nil {
		s.Sessions = m.store.Len()
	}
	return s
}

// Close stops accepting events and waits for queued ones to finish.
func (m *Manager) Close() {
	m.lanes.Close()
}

func (m *Manager) submit(ctx context.Context, id string, fn func(context.Context) error) error {
	lane, err := m.lanes.Acquire(id)
	if err != nil {
		return err
	}
	return lane.submit(ctx, fn, func() { m.lanes.Release(id) })
}

func (m *Manager) reset(id string) {
	m.stats.resets.Add(1)
	if m.store == nil {
		return
	}
	if m.store.Reset(id) {
		m.logger.Info("session reset", "conversation_id", id)
	}
}

// turn runs one prompt/reply exchange. It must run on the conversation's
// lane.
func (m *Manager) turn(ctx context.Context, id, prompt string) (string, error) {
	m.stats.turns.Add(1)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var (
		reply string
		err   error
	)
	if m.cfg.Memory {
		var conv completion.Conversation
		conv, err = m.store.GetOrCreate(ctx, id)
		if err != nil {
			return "", m.fail(&Failure{Kind: KindSessionCreateFailed, ConversationID: id, Err: err})
		}
		reply, err = m.client.SendTurn(ctx, conv, prompt)
	} else {
		reply, err = m.client.GenerateOnce(ctx, prompt)
	}

	switch {
	case err != nil:
		kind := KindUnexpected
		if completion.IsRemoteAPI(err) {
			kind = KindRemoteRejected
		}
		return "", m.fail(&Failure{Kind: kind, ConversationID: id, Err: err})
	case reply == "":
		return "", m.fail(&Failure{Kind: KindEmptyGeneration, ConversationID: id})
	default:
		m.stats.replies.Add(1)
		return reply, nil
	}
}

// fail counts and logs f, then returns it.
func (m *Manager) fail(f *Failure) error {
	log := m.logger.With("conversation_id", f.ConversationID, "kind", f.Kind.String())
	if code := relayerr.CodeOf(f.Err); code != "" {
		log = log.With("code", string(code))
	}
	switch f.Kind {
	case KindSessionCreateFailed:
		m.stats.createFailed.Add(1)
		log.Error("session creation failed", "error", f.Err)
	case KindEmptyGeneration:
		m.stats.empty.Add(1)
		log.Info("empty generation")
	case KindRemoteRejected:
		m.stats.rejected.Add(1)
		log.Warn("completion service rejected turn",
			"error", f.Err,
			"status_code", relayerr.FieldsOf(f.Err)["status_code"])
	default:
		m.stats.unexpected.Add(1)
		if relayerr.IsTimeout(f.Err) {
			m.stats.timeouts.Add(1)
			log.Warn("turn timed out", "timeout", m.cfg.Timeout, "error", f.Err)
			break
		}
		log.Error("turn failed", "error", f.Err)
	}
	return f
}

func validate(id, prompt string) error {
	if id == "" {
		return relayerr.New(relayerr.CodeConversationInvalidInput, "conversation id is empty")
	}
	if strings.TrimSpace(prompt) == "" {
		return relayerr.New(relayerr.CodeConversationInvalidInput, "prompt is empty",
			relayerr.FieldConversationID(id))
	}
	return nil
}
