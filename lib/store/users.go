// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// User is a registry account.
type User struct {
	ID    int64
	Login string
}

// EnsureUser returns the user with login, creating it when absent.
// Logins match case-insensitively; the stored casing follows the most
// recent call.
func EnsureUser(conn *sqlite.Conn, login string, now time.Time) (*User, error) {
	if login == "" {
		return nil, fmt.Errorf("store: empty login")
	}
	var user *User
	err := sqlitex.Execute(conn, `
		INSERT INTO users (login, login_lower, created_at) VALUES (?, ?, ?)
		ON CONFLICT (login_lower) DO UPDATE SET login = excluded.login
		RETURNING id, login`, &sqlitex.ExecOptions{
		Args: []any{login, strings.ToLower(login), now.UnixNano()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			user = &User{ID: stmt.ColumnInt64(0), Login: stmt.ColumnText(1)}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: ensuring user %s: %w", login, err)
	}
	return user, nil
}

// UserByLogin looks up a user case-insensitively.
func UserByLogin(conn *sqlite.Conn, login string) (*User, error) {
	var user *User
	err := sqlitex.Execute(conn, `SELECT id, login FROM users WHERE login_lower = ?`, &sqlitex.ExecOptions{
		Args: []any{strings.ToLower(login)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			user = &User{ID: stmt.ColumnInt64(0), Login: stmt.ColumnText(1)}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: user %s: %w", login, err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}
