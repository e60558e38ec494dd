// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/registry/lib/cratename"
)

// Crate is a package record.
type Crate struct {
	ID            int64
	Name          string
	Description   string
	Homepage      string
	Documentation string
	Repository    string
	Readme        string

	// MaxUploadSize overrides the global upload ceiling when
	// non-zero.
	MaxUploadSize int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCrate carries the mutable metadata written on every publish.
type NewCrate struct {
	Name          string
	Description   string
	Homepage      string
	Documentation string
	Repository    string
	Readme        string
}

const crateColumns = `id, name, description, homepage, documentation, repository, readme, max_upload_size, created_at, updated_at`

func scanCrate(stmt *sqlite.Stmt) *Crate {
	return &Crate{
		ID:            stmt.ColumnInt64(0),
		Name:          stmt.ColumnText(1),
		Description:   stmt.ColumnText(2),
		Homepage:      stmt.ColumnText(3),
		Documentation: stmt.ColumnText(4),
		Repository:    stmt.ColumnText(5),
		Readme:        stmt.ColumnText(6),
		MaxUploadSize: stmt.ColumnInt64(7),
		CreatedAt:     fromNanos(stmt.ColumnInt64(8)),
		UpdatedAt:     fromNanos(stmt.ColumnInt64(9)),
	}
}

// CreateOrUpdateCrate writes the crate row for a publish. It first
// attempts a conditional insert keyed on the canonical name; when a
// row already holds that name, whether from an earlier publish or a
// concurrent one that committed first, it updates the existing row's
// metadata instead. created reports which path ran. On the insert path
// creatorID is recorded as the crate's first owner.
//
// The existing row keeps its original name; callers compare it with
// the requested name to detect case drift.
func CreateOrUpdateCrate(conn *sqlite.Conn, c NewCrate, creatorID int64, now time.Time) (crate *Crate, created bool, err error) {
	canonical := cratename.Canonical(c.Name)

	var insertedID int64
	err = sqlitex.Execute(conn, `
		INSERT INTO crates (name, canonical_name, description, homepage, documentation, repository, readme, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (canonical_name) DO NOTHING
		RETURNING id`, &sqlitex.ExecOptions{
		Args: []any{
			c.Name, canonical, nullable(c.Description), nullable(c.Homepage),
			nullable(c.Documentation), nullable(c.Repository), nullable(c.Readme),
			now.UnixNano(), now.UnixNano(),
		},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			insertedID = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: inserting crate %s: %w", c.Name, err)
	}

	if insertedID != 0 {
		if err := AddUserOwner(conn, insertedID, creatorID, creatorID, now); err != nil {
			return nil, false, err
		}
		crate, err = crateWhere(conn, "id = ?", insertedID)
		return crate, true, err
	}

	err = sqlitex.Execute(conn, `
		UPDATE crates SET description = ?, homepage = ?, documentation = ?, repository = ?, readme = ?, updated_at = ?
		WHERE canonical_name = ?`, &sqlitex.ExecOptions{
		Args: []any{
			nullable(c.Description), nullable(c.Homepage), nullable(c.Documentation),
			nullable(c.Repository), nullable(c.Readme), now.UnixNano(), canonical,
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: updating crate %s: %w", c.Name, err)
	}
	crate, err = crateWhere(conn, "canonical_name = ?", canonical)
	return crate, false, err
}

// CrateByName finds a crate by canonical name, so "Foo-Bar" finds
// "foo_bar".
func CrateByName(conn *sqlite.Conn, name string) (*Crate, error) {
	return crateWhere(conn, "canonical_name = ?", cratename.Canonical(name))
}

// CrateByExactName finds a crate whose registered name is exactly
// name. Dependency edges resolve this way so the index always names
// the crate as it was registered.
func CrateByExactName(conn *sqlite.Conn, name string) (*Crate, error) {
	return crateWhere(conn, "name = ?", name)
}

// CrateByID finds a crate by row id.
func CrateByID(conn *sqlite.Conn, id int64) (*Crate, error) {
	return crateWhere(conn, "id = ?", id)
}

// SetMaxUploadSize sets or, with zero, clears a crate's upload ceiling
// override.
func SetMaxUploadSize(conn *sqlite.Conn, crateID, size int64) error {
	var value any
	if size > 0 {
		value = size
	}
	err := sqlitex.Execute(conn, `UPDATE crates SET max_upload_size = ? WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{value, crateID},
	})
	if err != nil {
		return fmt.Errorf("store: setting max upload size: %w", err)
	}
	return nil
}

// AllCrateNames returns every crate name in name order.
func AllCrateNames(conn *sqlite.Conn) ([]string, error) {
	var names []string
	err := sqlitex.Execute(conn, `SELECT name FROM crates ORDER BY name`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			names = append(names, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing crates: %w", err)
	}
	return names, nil
}

// IsReservedName reports whether name canonicalizes to a reserved
// name.
func IsReservedName(conn *sqlite.Conn, name string) (bool, error) {
	reserved := false
	err := sqlitex.Execute(conn, `SELECT 1 FROM reserved_crate_names WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{cratename.Canonical(name)},
		ResultFunc: func(*sqlite.Stmt) error {
			reserved = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("store: checking reserved name: %w", err)
	}
	return reserved, nil
}

// ReserveNames adds names to the reserved set. Already-reserved names
// are ignored.
func ReserveNames(conn *sqlite.Conn, names ...string) error {
	for _, name := range names {
		err := sqlitex.Execute(conn, `INSERT INTO reserved_crate_names (name) VALUES (?) ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
			Args: []any{cratename.Canonical(name)},
		})
		if err != nil {
			return fmt.Errorf("store: reserving %s: %w", name, err)
		}
	}
	return nil
}

func crateWhere(conn *sqlite.Conn, condition string, arg any) (*Crate, error) {
	var crate *Crate
	err := sqlitex.Execute(conn, `SELECT `+crateColumns+` FROM crates WHERE `+condition, &sqlitex.ExecOptions{
		Args: []any{arg},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			crate = scanCrate(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: crate lookup: %w", err)
	}
	if crate == nil {
		return nil, ErrNotFound
	}
	return crate, nil
}
