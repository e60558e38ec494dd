// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements per-user token buckets for publish
// actions, persisted in the registry database.
//
// A bucket holds at most Burst tokens and earns one token every Rate.
// Each permitted action spends one token. Refill is computed lazily on
// each check from the time of the last refill, so idle buckets cost
// nothing. Buckets live in SQL so every registry process shares them.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/clock"
)

// Action names a rate-limited operation.
type Action string

const (
	// PublishNew is the first publish of a crate name.
	PublishNew Action = "publish-new"

	// PublishUpdate is a new version of an existing crate.
	PublishUpdate Action = "publish-update"
)

// Limit is one action's bucket shape.
type Limit struct {
	// Rate is the time to earn one token.
	Rate time.Duration `yaml:"rate"`

	// Burst is the bucket capacity.
	Burst int `yaml:"burst"`
}

// DefaultLimits returns the stock bucket shapes: one new crate every
// ten minutes with a burst of five, and one update per minute with a
// burst of thirty.
func DefaultLimits() map[Action]Limit {
	return map[Action]Limit{
		PublishNew:    {Rate: 10 * time.Minute, Burst: 5},
		PublishUpdate: {Rate: time.Minute, Burst: 30},
	}
}

// Transactor runs fn inside a write transaction. *store.Store
// satisfies it.
type Transactor interface {
	Transact(ctx context.Context, fn func(conn *sqlite.Conn) error) error
}

// Config holds the limiter's dependencies.
type Config struct {
	// DB runs the bucket updates. Required.
	DB Transactor

	// Limits maps each action to its bucket. Actions without an
	// entry are not limited. Nil means DefaultLimits.
	Limits map[Action]Limit

	// Clock drives refill. Required.
	Clock clock.Clock

	// Logger receives rejections. Required.
	Logger *slog.Logger
}

// Limiter checks and spends bucket tokens.
type Limiter struct {
	db     Transactor
	limits map[Action]Limit
	clock  clock.Clock
	logger *slog.Logger
}

// New validates cfg and returns a Limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("ratelimit: DB is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("ratelimit: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("ratelimit: Logger is required")
	}
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	for action, limit := range limits {
		if limit.Rate <= 0 || limit.Burst <= 0 {
			return nil, fmt.Errorf("ratelimit: %s: rate and burst must be positive", action)
		}
	}
	return &Limiter{db: cfg.DB, limits: limits, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Check spends one token of userID's bucket for action. It runs in its
// own transaction, so a spent token stays spent even when the caller's
// later work fails. An empty bucket returns an apperr.RateLimited error
// whose RetryAfter is when the next token arrives.
func (l *Limiter) Check(ctx context.Context, userID int64, action Action) error {
	limit, ok := l.limits[action]
	if !ok {
		return nil
	}
	now := l.clock.Now()

	var retryAt time.Time
	err := l.db.Transact(ctx, func(conn *sqlite.Conn) error {
		burst, err := effectiveBurst(conn, userID, action, limit.Burst, now)
		if err != nil {
			return err
		}

		tokens := int64(burst)
		lastRefill := now
		found := false
		err = sqlitex.Execute(conn, `SELECT tokens, last_refill FROM publish_limit_buckets WHERE user_id = ? AND action = ?`, &sqlitex.ExecOptions{
			Args: []any{userID, string(action)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				tokens = stmt.ColumnInt64(0)
				lastRefill = time.Unix(0, stmt.ColumnInt64(1))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("ratelimit: reading bucket: %w", err)
		}

		if found {
			tokens, lastRefill = refill(tokens, lastRefill, now, limit.Rate, int64(burst))
		}
		if tokens < 1 {
			retryAt = lastRefill.Add(limit.Rate)
		} else {
			tokens--
		}

		err = sqlitex.Execute(conn, `
			INSERT INTO publish_limit_buckets (user_id, action, tokens, last_refill) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, action) DO UPDATE SET tokens = excluded.tokens, last_refill = excluded.last_refill`, &sqlitex.ExecOptions{
			Args: []any{userID, string(action), tokens, lastRefill.UnixNano()},
		})
		if err != nil {
			return fmt.Errorf("ratelimit: writing bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperr.Internalf(err, "rate limit check failed")
	}
	if !retryAt.IsZero() {
		l.logger.Info("rate limited",
			"user_id", userID,
			"action", string(action),
			"retry_after", retryAt.UTC().Format(time.RFC3339),
		)
		return apperr.RateLimitedUntil(retryAt.UTC(), rejectionMessage(action, retryAt))
	}
	return nil
}

// refill adds the whole tokens earned since lastRefill, capped at
// burst. lastRefill advances only by the time those tokens cost so
// fractional progress carries over. A full bucket restarts its clock.
func refill(tokens int64, lastRefill, now time.Time, rate time.Duration, burst int64) (int64, time.Time) {
	elapsed := now.Sub(lastRefill)
	if elapsed <= 0 {
		return min(tokens, burst), lastRefill
	}
	earned := int64(elapsed / rate)
	if tokens+earned >= burst {
		return burst, now
	}
	return tokens + earned, lastRefill.Add(time.Duration(earned) * rate)
}

func rejectionMessage(action Action, retryAt time.Time) string {
	what := "published too many new crates"
	if action == PublishUpdate {
		what = "published too many updates to existing crates"
	}
	return fmt.Sprintf("You have %s in a short period of time. Please try again after %s or email help@crates.io to have your limit increased.",
		what, retryAt.UTC().Format(http1123))
}

// http1123 is the HTTP date format.
const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"
