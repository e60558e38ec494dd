// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/registry/lib/rights"
)

// Team is a stored team identity.
type Team struct {
	ID     int64
	Login  string
	OrgID  int64
	TeamID int64
	Name   string
}

// UpsertTeam stores a team keyed by its external (org, team) id pair.
// When the pair is already known, the login and display name are
// updated in place, so an org or team rename at the provider keeps
// every ownership entry. Logins are stored lowercase.
func UpsertTeam(conn *sqlite.Conn, login string, orgID, teamID int64, name string) (*Team, error) {
	var team *Team
	err := sqlitex.Execute(conn, `
		INSERT INTO teams (login, org_id, team_id, name) VALUES (?, ?, ?, ?)
		ON CONFLICT (org_id, team_id) DO UPDATE SET login = excluded.login, name = excluded.name
		RETURNING id, login, org_id, team_id, name`, &sqlitex.ExecOptions{
		Args: []any{strings.ToLower(login), orgID, teamID, nullable(name)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			team = scanTeam(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: upserting team %s: %w", login, err)
	}
	return team, nil
}

// TeamByLogin finds a team by login, case-insensitively.
func TeamByLogin(conn *sqlite.Conn, login string) (*Team, error) {
	var team *Team
	err := sqlitex.Execute(conn, `SELECT id, login, org_id, team_id, name FROM teams WHERE login = ?`, &sqlitex.ExecOptions{
		Args: []any{strings.ToLower(login)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			team = scanTeam(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: team %s: %w", login, err)
	}
	if team == nil {
		return nil, ErrNotFound
	}
	return team, nil
}

func scanTeam(stmt *sqlite.Stmt) *Team {
	return &Team{
		ID:     stmt.ColumnInt64(0),
		Login:  stmt.ColumnText(1),
		OrgID:  stmt.ColumnInt64(2),
		TeamID: stmt.ColumnInt64(3),
		Name:   stmt.ColumnText(4),
	}
}

// Owners lists a crate's owners, individual users first.
func Owners(conn *sqlite.Conn, crateID int64) ([]rights.Owner, error) {
	owners := []rights.Owner{}
	err := sqlitex.Execute(conn, `
		SELECT o.owner_kind, o.owner_id, coalesce(u.login, t.login), coalesce(t.org_id, 0), coalesce(t.team_id, 0)
		FROM crate_owners o
		LEFT JOIN users u ON o.owner_kind = 0 AND u.id = o.owner_id
		LEFT JOIN teams t ON o.owner_kind = 1 AND t.id = o.owner_id
		WHERE o.crate_id = ?
		ORDER BY o.owner_kind, o.created_at, o.owner_id`, &sqlitex.ExecOptions{
		Args: []any{crateID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			owners = append(owners, rights.Owner{
				Kind:   rights.OwnerKind(stmt.ColumnInt64(0)),
				ID:     stmt.ColumnInt64(1),
				Login:  stmt.ColumnText(2),
				OrgID:  stmt.ColumnInt64(3),
				TeamID: stmt.ColumnInt64(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing owners: %w", err)
	}
	return owners, nil
}

// AddUserOwner makes userID an owner of crateID. Adding an existing
// owner is a no-op.
func AddUserOwner(conn *sqlite.Conn, crateID, userID, createdBy int64, now time.Time) error {
	return addOwner(conn, crateID, rights.UserOwner, userID, createdBy, now)
}

// AddTeamOwner makes the team with row id teamID an owner of crateID.
func AddTeamOwner(conn *sqlite.Conn, crateID, teamID, createdBy int64, now time.Time) error {
	return addOwner(conn, crateID, rights.TeamOwner, teamID, createdBy, now)
}

func addOwner(conn *sqlite.Conn, crateID int64, kind rights.OwnerKind, ownerID, createdBy int64, now time.Time) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO crate_owners (crate_id, owner_kind, owner_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
		Args: []any{crateID, int64(kind), ownerID, createdBy, now.UnixNano()},
	})
	if err != nil {
		return fmt.Errorf("store: adding owner: %w", err)
	}
	return nil
}

// RemoveOwner deletes one ownership entry. Removing an entry that does
// not exist is a no-op.
func RemoveOwner(conn *sqlite.Conn, crateID int64, kind rights.OwnerKind, ownerID int64) error {
	err := sqlitex.Execute(conn, `DELETE FROM crate_owners WHERE crate_id = ? AND owner_kind = ? AND owner_id = ?`, &sqlitex.ExecOptions{
		Args: []any{crateID, int64(kind), ownerID},
	})
	if err != nil {
		return fmt.Errorf("store: removing owner: %w", err)
	}
	return nil
}
