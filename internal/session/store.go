// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sigil-dev/chatrelay/internal/completion"
	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// DefaultCreateTimeout bounds CreateConversation when no timeout is
// configured.
const DefaultCreateTimeout = completion.DefaultTimeout

// Options tunes eviction. Zero values disable the corresponding policy.
type Options struct {
	// IdleTTL expires handles not used for this long (see CleanupExpired).
	IdleTTL time.Duration
	// MaxEntries caps the store; the least recently used handle is evicted
	// on insert once the cap is exceeded.
	MaxEntries int
	// CreateTimeout bounds a single CreateConversation call.
	CreateTimeout time.Duration
}

type entry struct {
	id       string
	conv     completion.Conversation
	lastUsed time.Time
}

// Store maps conversation IDs to completion handles. It holds at most one
// handle per ID and is safe for concurrent use.
type Store struct {
	client completion.Client
	opts   Options
	logger *slog.Logger

	// creates collapses concurrent first-touch creation for the same ID.
	creates singleflight.Group

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	nowFunc func() time.Time
}

// NewStore returns an empty store that creates handles with client.
func NewStore(client completion.Client, opts Options) *Store {
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = DefaultCreateTimeout
	}
	return &Store{
		client:  client,
		opts:    opts,
		logger:  slog.Default().With("component", "session.store"),
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock. Used by tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = fn
}

// GetOrCreate returns the handle stored for id, creating and storing one if
// absent. Concurrent calls for the same unseen id share a single
// CreateConversation call. A failed creation stores nothing.
//
// Creation is detached from ctx cancellation so that one abandoned caller
// does not fail the others waiting on the same id; it is bounded by
// Options.CreateTimeout instead.
func (s *Store) GetOrCreate(ctx context.Context, id string) (completion.Conversation, error) {
	if id == "" {
		return nil, relayerr.New(relayerr.CodeConversationInvalidInput, "session: conversation id is empty")
	}
	if conv, ok := s.touch(id); ok {
		return conv, nil
	}

	ch := s.creates.DoChan(id, func() (any, error) {
		// Another flight may have stored the handle between touch and here.
		if conv, ok := s.touch(id); ok {
			return conv, nil
		}

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CreateTimeout)
		defer cancel()

		conv, err := s.client.CreateConversation(cctx)
		if err != nil {
			return nil, err
		}
		s.insert(id, conv)
		s.logger.Info("session created",
			"conversation_id", id,
			"handle", conv.ID(),
			"backend", s.client.Backend(),
		)
		return conv, nil
	})

	select {
	case <-ctx.Done():
		return nil, relayerr.Wrap(ctx.Err(), relayerr.CodeSessionCreateFailure,
			"session: waiting for conversation", relayerr.FieldConversationID(id))
	case res := <-ch:
		if res.Err != nil {
			return nil, relayerr.Wrap(res.Err, relayerr.CodeSessionCreateFailure,
				"session: creating conversation", relayerr.FieldConversationID(id))
		}
		return res.Val.(completion.Conversation), nil
	}
}

// Lookup returns the handle stored for id without creating one or updating
// its recency.
func (s *Store) Lookup(id string) (completion.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*entry).conv, true
}

// Reset discards the handle stored for id. Resetting an unknown id is a
// no-op. Reports whether a handle was removed.
func (s *Store) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return false
	}
	s.removeLocked(el)
	return true
}

// Len returns the number of stored handles.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CleanupExpired removes handles idle for longer than Options.IdleTTL and
// returns how many were removed. It does nothing when IdleTTL is zero.
func (s *Store) CleanupExpired() int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.nowFunc().Add(-s.opts.IdleTTL)
	removed := 0
	for el := s.lru.Back(); el != nil; {
		e := el.Value.(*entry)
		if !e.lastUsed.Before(cutoff) {
			break
		}
		prev := el.Prev()
		s.removeLocked(el)
		removed++
		el = prev
	}
	return removed
}

func (s *Store) touch(id string) (completion.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	e.lastUsed = s.nowFunc()
	s.lru.MoveToFront(el)
	return e.conv, true
}

func (s *Store) insert(id string, conv completion.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[id]; ok {
		s.removeLocked(el)
	}
	s.entries[id] = s.lru.PushFront(&entry{id: id, conv: conv, lastUsed: s.nowFunc()})

	for s.opts.MaxEntries > 0 && s.lru.Len() > s.opts.MaxEntries {
		oldest := s.lru.Back()
		s.logger.Debug("session evicted", "conversation_id", oldest.Value.(*entry).id)
		s.removeLocked(oldest)
	}
}

func (s *Store) removeLocked(el *list.Element) {
	s.lru.Remove(el)
	delete(s.entries, el.Value.(*entry).id)
}
