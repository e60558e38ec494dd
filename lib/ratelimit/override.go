// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SetOverride replaces userID's burst for action. A zero expiry keeps
// the override until it is cleared.
func (l *Limiter) SetOverride(ctx context.Context, userID int64, action Action, burst int, expires time.Time) error {
	if burst <= 0 {
		return fmt.Errorf("ratelimit: override burst must be positive")
	}
	var expiresAt any
	if !expires.IsZero() {
		expiresAt = expires.UnixNano()
	}
	return l.db.Transact(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO publish_rate_overrides (user_id, action, burst, expires_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, action) DO UPDATE SET burst = excluded.burst, expires_at = excluded.expires_at`, &sqlitex.ExecOptions{
			Args: []any{userID, string(action), burst, expiresAt},
		})
		if err != nil {
			return fmt.Errorf("ratelimit: setting override: %w", err)
		}
		return nil
	})
}

// ClearOverride removes userID's override for action.
func (l *Limiter) ClearOverride(ctx context.Context, userID int64, action Action) error {
	return l.db.Transact(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM publish_rate_overrides WHERE user_id = ? AND action = ?`, &sqlitex.ExecOptions{
			Args: []any{userID, string(action)},
		})
		if err != nil {
			return fmt.Errorf("ratelimit: clearing override: %w", err)
		}
		return nil
	})
}

// effectiveBurst returns the override burst when one is active at now,
// otherwise fallback.
func effectiveBurst(conn *sqlite.Conn, userID int64, action Action, fallback int, now time.Time) (int, error) {
	burst := fallback
	err := sqlitex.Execute(conn, `
		SELECT burst FROM publish_rate_overrides
		WHERE user_id = ? AND action = ? AND (expires_at IS NULL OR expires_at > ?)`, &sqlitex.ExecOptions{
		Args: []any{userID, string(action), now.UnixNano()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			burst = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ratelimit: reading override: %w", err)
	}
	return burst, nil
}
