// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultCleanupInterval is how often the janitor sweeps when no interval is
// configured.
const DefaultCleanupInterval = time.Minute

// Janitor periodically removes idle handles from a Store.
type Janitor struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewJanitor returns a janitor sweeping store every interval.
func NewJanitor(store *Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Janitor{
		store:    store,
		interval: interval,
		logger:   slog.Default().With("component", "session.janitor"),
	}
}

// Run sweeps until ctx is done. It always returns nil so it can sit in an
// errgroup next to the other serving goroutines.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.DebugContext(ctx, "janitor stopping")
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	start := time.Now()
	removed := j.store.CleanupExpired()
	if removed > 0 {
		j.logger.InfoContext(ctx, "expired sessions removed",
			slog.Int("removed", removed),
			slog.Int("remaining", j.store.Len()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
