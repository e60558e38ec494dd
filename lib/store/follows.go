// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Follow records that userID follows crateID. Following twice is a
// no-op.
func Follow(conn *sqlite.Conn, userID, crateID int64) error {
	err := sqlitex.Execute(conn, `INSERT INTO follows (user_id, crate_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
		Args: []any{userID, crateID},
	})
	if err != nil {
		return fmt.Errorf("store: follow: %w", err)
	}
	return nil
}

// Unfollow removes a follow. Unfollowing a crate that is not followed
// is a no-op.
func Unfollow(conn *sqlite.Conn, userID, crateID int64) error {
	err := sqlitex.Execute(conn, `DELETE FROM follows WHERE user_id = ? AND crate_id = ?`, &sqlitex.ExecOptions{
		Args: []any{userID, crateID},
	})
	if err != nil {
		return fmt.Errorf("store: unfollow: %w", err)
	}
	return nil
}

// IsFollowing reports whether userID follows crateID.
func IsFollowing(conn *sqlite.Conn, userID, crateID int64) (bool, error) {
	following := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM follows WHERE user_id = ? AND crate_id = ?`, &sqlitex.ExecOptions{
		Args: []any{userID, crateID},
		ResultFunc: func(*sqlite.Stmt) error {
			following = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("store: checking follow: %w", err)
	}
	return following, nil
}

// FollowedCrates lists the names of the crates userID follows.
func FollowedCrates(conn *sqlite.Conn, userID int64) ([]string, error) {
	return listStrings(conn, `
		SELECT c.name FROM follows f JOIN crates c ON c.id = f.crate_id
		WHERE f.user_id = ? ORDER BY c.name`, userID)
}
