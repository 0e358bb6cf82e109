// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package conversation

import "context"

// LaneQueueSize is the per-conversation backlog limit.
const LaneQueueSize = laneQueueSize

// LiveLanes exposes the number of live lanes for tests.
func (m *Manager) LiveLanes() int { return m.lanes.Len() }

// Submit runs fn on the lane and waits for it.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	return l.submit(ctx, fn, nil)
}

// TryEnqueue queues fn without waiting for it to run.
func (l *Lane) TryEnqueue(ctx context.Context, fn func(context.Context) error) error {
	return l.tryEnqueue(workItem{fn: fn, ctx: ctx})
}
