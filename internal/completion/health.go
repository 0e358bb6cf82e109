// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package completion

import (
	"context"
	"errors"
	"sync"
	"time"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
	"github.com/sigil-dev/chatrelay/pkg/health"
)

// HealthTracker provides simple health state tracking for a completion
// backend. A backend is considered healthy until RecordFailure is called.
// After a failure it is marked unhealthy for a cooldown period, after which
// it is reported available again.
type HealthTracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	successCount int64
	nowFunc      func() time.Time // for testing
}

// DefaultHealthCooldown is the duration after which an unhealthy backend is
// reported available again.
const DefaultHealthCooldown = 30 * time.Second

// NewHealthTracker creates a HealthTracker that starts healthy.
// Returns an error if cooldown is zero or negative.
func NewHealthTracker(cooldown time.Duration) (*HealthTracker, error) {
	if cooldown <= 0 {
		return nil, relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &HealthTracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked reports whether the backend is healthy or the cooldown
// has elapsed. The caller MUST hold at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy returns true if the backend is healthy or the cooldown has elapsed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

// RecordSuccess marks the backend as healthy.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.successCount++
	h.mu.Unlock()
}

// RecordFailure marks the backend as unhealthy and increments the
// cumulative failure count.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.healthy = false
	h.failedAt = h.nowFunc()
	h.failureCount++
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's health state.
func (h *HealthTracker) Metrics() health.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := health.Metrics{
		FailureCount: h.failureCount,
		SuccessCount: h.successCount,
	}

	if h.failureCount > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}

	m.Available = h.isHealthyLocked()
	if !h.healthy {
		cooldownEnd := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}

// Monitored wraps a Client and records the outcome of every remote call in a
// HealthTracker, conversation creation included. Empty replies count as
// successes.
type Monitored struct {
	Client
	health *HealthTracker
}

// Monitor returns c wrapped with health tracking.
func Monitor(c Client, h *HealthTracker) *Monitored {
	return &Monitored{Client: c, health: h}
}

func (m *Monitored) CreateConversation(ctx context.Context) (Conversation, error) {
	conv, err := m.Client.CreateConversation(ctx)
	m.record(err)
	return conv, err
}

func (m *Monitored) SendTurn(ctx context.Context, conv Conversation, prompt string) (string, error) {
	reply, err := m.Client.SendTurn(ctx, conv, prompt)
	m.record(err)
	return reply, err
}

func (m *Monitored) GenerateOnce(ctx context.Context, prompt string) (string, error) {
	reply, err := m.Client.GenerateOnce(ctx, prompt)
	m.record(err)
	return reply, err
}

// Health returns the backend's health snapshot.
func (m *Monitored) Health() health.Metrics {
	return m.health.Metrics()
}

func (m *Monitored) record(err error) {
	if err == nil {
		m.health.RecordSuccess()
		return
	}
	// Caller cancellation says nothing about the backend.
	if relayerr.HasCode(err, relayerr.CodeCompletionHandleInvalid) || errors.Is(err, context.Canceled) {
		return
	}
	m.health.RecordFailure()
}
