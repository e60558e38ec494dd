// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/registry/lib/clock"
)

// rateLimitTracker remembers the X-RateLimit-* headers of the last
// response and holds requests back once the budget is spent.
type rateLimitTracker struct {
	clock clock.Clock

	mu        sync.Mutex
	known     bool
	remaining int
	reset     time.Time
}

func newRateLimitTracker(c clock.Clock) *rateLimitTracker {
	return &rateLimitTracker{clock: c}
}

func (tracker *rateLimitTracker) update(header http.Header) {
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.known = true
	tracker.remaining = remaining
	tracker.reset = time.Unix(reset, 0)
}

// wait blocks until the reset time when the budget is exhausted.
func (tracker *rateLimitTracker) wait(ctx context.Context) error {
	tracker.mu.Lock()
	if !tracker.known || tracker.remaining > 0 {
		tracker.mu.Unlock()
		return nil
	}
	delay := tracker.reset.Sub(tracker.clock.Now())
	tracker.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	select {
	case <-tracker.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfter reads the wait from Retry-After (seconds), falling back
// to X-RateLimit-Reset. Zero means no hint.
func (tracker *rateLimitTracker) retryAfter(header http.Header) time.Duration {
	if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		if delay := time.Unix(reset, 0).Sub(tracker.clock.Now()); delay > 0 {
			return delay
		}
	}
	return 0
}
