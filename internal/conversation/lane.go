// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package conversation

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sigil-dev/chatrelay/pkg/errors"
)

// laneQueueSize bounds the backlog of a single conversation. Once it is full,
// tryEnqueue fails with CodeConversationLaneBusy and submit blocks.
const laneQueueSize = 256

// workItem represents a unit of work submitted to a Lane.
type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error // nil for fire-and-forget items
	after  func()       // runs whether fn ran or was skipped
}

// Lane serialises work for a single conversation. Work is executed one item
// at a time in FIFO order by a background goroutine.
type Lane struct {
	conversationID string
	queue          chan workItem
	done           chan struct{}
	closing        chan struct{} // closed as soon as shutdown starts

	once sync.Once
}

// NewLane creates a Lane for the given conversation and starts its background
// processing goroutine. Call Close when the lane is no longer needed.
func NewLane(conversationID string) *Lane {
	l := &Lane{
		conversationID: conversationID,
		queue:          make(chan workItem, laneQueueSize),
		done:           make(chan struct{}),
		closing:        make(chan struct{}),
	}
	go l.run()
	return l
}

// run processes work items sequentially until the lane is closed.
func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.executeWork(w)
		case <-l.closing:
			// Drain any remaining queued items before exiting.
			for {
				select {
				case w := <-l.queue:
					l.executeWork(w)
				default:
					return
				}
			}
		}
	}
}

// executeWork runs a work item with panic recovery.
func (l *Lane) executeWork(w workItem) {
	if w.after != nil {
		defer w.after()
	}

	// Skip execution if the submitter's context is already cancelled.
	if err := w.ctx.Err(); err != nil {
		l.report(w, err)
		return
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("lane worker panic recovered",
					"conversation_id", l.conversationID,
					"panic", r,
					"stack", string(debug.Stack()))
				err = errors.Errorf(errors.CodeConversationLanePanic,
					"worker panic: %v", r)
			}
		}()
		err = w.fn(w.ctx)
	}()

	l.report(w, err)
}

func (l *Lane) report(w workItem, err error) {
	if w.result != nil {
		w.result <- err
		return
	}
	if err != nil {
		slog.Debug("lane work item finished with error",
			"conversation_id", l.conversationID,
			"error", err)
	}
}

func (l *Lane) closedErr() error {
	return errors.New(errors.CodeConversationLaneClosed, "lane is closed",
		errors.FieldConversationID(l.conversationID))
}

// enqueue queues w, waiting for room while the lane is full.
func (l *Lane) enqueue(w workItem) error {
	// Fast path: bail immediately if context is already done.
	if err := w.ctx.Err(); err != nil {
		return err
	}

	// This non-blocking check prevents sends racing a drained queue.
	select {
	case <-l.closing:
		return l.closedErr()
	default:
	}

	select {
	case <-w.ctx.Done():
		return w.ctx.Err()
	case <-l.closing:
		return l.closedErr()
	case l.queue <- w:
		return nil
	}
}

// tryEnqueue queues w without waiting. A full lane fails with
// CodeConversationLaneBusy, so a backlog in one conversation never holds up
// the caller.
func (l *Lane) tryEnqueue(w workItem) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	select {
	case <-l.closing:
		return l.closedErr()
	default:
	}

	select {
	case l.queue <- w:
		return nil
	default:
		return errors.New(errors.CodeConversationLaneBusy, "lane is full",
			errors.FieldConversationID(l.conversationID))
	}
}

// submit queues fn and blocks until it completes. after, if set, runs exactly
// once, including when the item cannot be queued. If ctx is
// cancelled before fn starts, ctx.Err() is returned and fn is skipped.
func (l *Lane) submit(ctx context.Context, fn func(context.Context) error, after func()) error {
	result := make(chan error, 1)
	if err := l.enqueue(workItem{fn: fn, ctx: ctx, result: result, after: after}); err != nil {
		if after != nil {
			after()
		}
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// stop signals shutdown without waiting. Already-queued items still run.
// Safe to call from the lane's own worker.
func (l *Lane) stop() {
	l.once.Do(func() { close(l.closing) })
}

// Close shuts down the lane's background goroutine and waits for it to finish
// processing any already-enqueued work. Close is idempotent and safe for
// concurrent calls, but must not be called from work running on the lane.
func (l *Lane) Close() {
	l.stop()
	<-l.done
}

// pooledLane counts the callers holding a lane.
type pooledLane struct {
	lane *Lane
	refs int
}

// LanePool manages a set of Lanes keyed by conversation ID. A lane lives
// while at least one caller holds it and is retired on the last Release, so
// idle conversations cost nothing. Safe for concurrent use.
type LanePool struct {
	mu     sync.Mutex
	lanes  map[string]*pooledLane
	closed bool
}

// NewLanePool returns an empty LanePool.
func NewLanePool() *LanePool {
	return &LanePool{
		lanes: make(map[string]*pooledLane),
	}
}

// Acquire returns the Lane for the given conversation, creating one if none
// is live, and takes a reference on it. Every successful Acquire must be
// paired with a Release.
func (p *LanePool) Acquire(conversationID string) (*Lane, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New(errors.CodeConversationLaneClosed, "lane pool is closed",
			errors.FieldConversationID(conversationID))
	}

	pl, ok := p.lanes[conversationID]
	if !ok {
		pl = &pooledLane{lane: NewLane(conversationID)}
		p.lanes[conversationID] = pl
	}
	pl.refs++
	return pl.lane, nil
}

// Release drops a reference taken by Acquire. The last release retires the
// lane; work already queued on it still runs.
func (p *LanePool) Release(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl, ok := p.lanes[conversationID]
	if !ok {
		return
	}
	pl.refs--
	if pl.refs <= 0 {
		delete(p.lanes, conversationID)
		pl.lane.stop()
	}
}

// Len returns the number of live lanes.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close refuses further Acquire calls, then shuts down all live lanes and
// waits for their queued work.
func (p *LanePool) Close() {
	p.mu.Lock()
	p.closed = true
	lanes := make([]*Lane, 0, len(p.lanes))
	for _, pl := range p.lanes {
		lanes = append(lanes, pl.lane)
	}
	p.lanes = make(map[string]*pooledLane)
	p.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
