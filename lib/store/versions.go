// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Version is one published release of a crate.
type Version struct {
	ID          int64
	CrateID     int64
	Num         string
	Checksum    string
	License     string
	Features    map[string][]string
	CrateSize   int64
	Links       string
	RustVersion string
	PublishedBy int64
	Yanked      bool
	CreatedAt   time.Time
}

// NewVersion is the input to InsertVersion.
type NewVersion struct {
	CrateID     int64
	Num         string
	Checksum    string
	License     string
	Features    map[string][]string
	CrateSize   int64
	Links       string
	RustVersion string
	PublishedBy int64
}

// Version owner actions.
const (
	ActionPublish = "publish"
	ActionYank    = "yank"
	ActionUnyank  = "unyank"
)

const versionColumns = `id, crate_id, num, checksum, license, features, crate_size, links, rust_version, published_by, yanked, created_at`

func scanVersion(stmt *sqlite.Stmt) (*Version, error) {
	version := &Version{
		ID:          stmt.ColumnInt64(0),
		CrateID:     stmt.ColumnInt64(1),
		Num:         stmt.ColumnText(2),
		Checksum:    stmt.ColumnText(3),
		License:     stmt.ColumnText(4),
		CrateSize:   stmt.ColumnInt64(6),
		Links:       stmt.ColumnText(7),
		RustVersion: stmt.ColumnText(8),
		PublishedBy: stmt.ColumnInt64(9),
		Yanked:      stmt.ColumnInt64(10) != 0,
		CreatedAt:   fromNanos(stmt.ColumnInt64(11)),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(5)), &version.Features); err != nil {
		return nil, fmt.Errorf("store: decoding features of version %d: %w", version.ID, err)
	}
	return version, nil
}

// VersionExists reports whether crateID already has version num.
func VersionExists(conn *sqlite.Conn, crateID int64, num string) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM versions WHERE crate_id = ? AND num = ?`, &sqlitex.ExecOptions{
		Args: []any{crateID, num},
		ResultFunc: func(*sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("store: checking version: %w", err)
	}
	return exists, nil
}

// InsertVersion inserts a version row. A duplicate (crate, num) is a
// constraint error; callers check VersionExists first to report it
// as client input.
func InsertVersion(conn *sqlite.Conn, v NewVersion, now time.Time) (*Version, error) {
	features := v.Features
	if features == nil {
		features = map[string][]string{}
	}
	encoded, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("store: encoding features: %w", err)
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO versions (crate_id, num, checksum, license, features, crate_size, links, rust_version, published_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			v.CrateID, v.Num, v.Checksum, nullable(v.License), string(encoded), v.CrateSize,
			nullable(v.Links), nullable(v.RustVersion), v.PublishedBy, now.UnixNano(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: inserting version %s: %w", v.Num, err)
	}
	return &Version{
		ID:          conn.LastInsertRowID(),
		CrateID:     v.CrateID,
		Num:         v.Num,
		Checksum:    v.Checksum,
		License:     v.License,
		Features:    features,
		CrateSize:   v.CrateSize,
		Links:       v.Links,
		RustVersion: v.RustVersion,
		PublishedBy: v.PublishedBy,
		CreatedAt:   now.UTC(),
	}, nil
}

// InsertVersionOwnerAction records who performed action on a version
// and with which credential. tokenID zero means no API token (session
// or administrative action).
func InsertVersionOwnerAction(conn *sqlite.Conn, versionID, userID, tokenID int64, action string, now time.Time) error {
	var token any
	if tokenID != 0 {
		token = tokenID
	}
	err := sqlitex.Execute(conn, `
		INSERT INTO version_owner_actions (version_id, user_id, token_id, action, created_at)
		VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{versionID, userID, token, action, now.UnixNano()},
	})
	if err != nil {
		return fmt.Errorf("store: recording %s action: %w", action, err)
	}
	return nil
}

// VersionOwnerAction is one attribution record.
type VersionOwnerAction struct {
	VersionID int64
	UserID    int64
	TokenID   int64
	Action    string
	CreatedAt time.Time
}

// VersionOwnerActions lists the attribution records of a version.
func VersionOwnerActions(conn *sqlite.Conn, versionID int64) ([]VersionOwnerAction, error) {
	var actions []VersionOwnerAction
	err := sqlitex.Execute(conn, `
		SELECT version_id, user_id, token_id, action, created_at FROM version_owner_actions
		WHERE version_id = ? ORDER BY id`, &sqlitex.ExecOptions{
		Args: []any{versionID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			actions = append(actions, VersionOwnerAction{
				VersionID: stmt.ColumnInt64(0),
				UserID:    stmt.ColumnInt64(1),
				TokenID:   stmt.ColumnInt64(2),
				Action:    stmt.ColumnText(3),
				CreatedAt: fromNanos(stmt.ColumnInt64(4)),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing version actions: %w", err)
	}
	return actions, nil
}

// CountVersionsSince counts the crate's versions created strictly
// after since.
func CountVersionsSince(conn *sqlite.Conn, crateID int64, since time.Time) (int, error) {
	count := 0
	err := sqlitex.Execute(conn, `SELECT count(*) FROM versions WHERE crate_id = ? AND created_at > ?`, &sqlitex.ExecOptions{
		Args: []any{crateID, since.UnixNano()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("store: counting versions: %w", err)
	}
	return count, nil
}

// Versions lists a crate's versions in publish order.
func Versions(conn *sqlite.Conn, crateID int64) ([]*Version, error) {
	var versions []*Version
	err := sqlitex.Execute(conn, `SELECT `+versionColumns+` FROM versions WHERE crate_id = ? ORDER BY id`, &sqlitex.ExecOptions{
		Args: []any{crateID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version, err := scanVersion(stmt)
			if err != nil {
				return err
			}
			versions = append(versions, version)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing versions: %w", err)
	}
	return versions, nil
}

// TopVersions summarises a crate's releases.
type TopVersions struct {
	// Highest is the greatest non-yanked version by semver
	// precedence, preferring releases over pre-releases.
	Highest string

	// HighestStable is the greatest non-yanked release without a
	// pre-release tag. Empty when every release is a pre-release.
	HighestStable string

	// Newest is the most recently published version.
	Newest string
}

// ComputeTopVersions derives TopVersions from a publish-ordered list.
func ComputeTopVersions(versions []*Version) TopVersions {
	var top TopVersions
	var highest, highestStable *semver.Version
	for _, version := range versions {
		top.Newest = version.Num
		if version.Yanked {
			continue
		}
		parsed, err := semver.NewVersion(version.Num)
		if err != nil {
			continue
		}
		if highest == nil || parsed.GreaterThan(highest) {
			highest = parsed
			top.Highest = version.Num
		}
		if parsed.Prerelease() == "" && (highestStable == nil || parsed.GreaterThan(highestStable)) {
			highestStable = parsed
			top.HighestStable = version.Num
		}
	}
	if top.HighestStable != "" {
		top.Highest = top.HighestStable
	}
	return top
}
