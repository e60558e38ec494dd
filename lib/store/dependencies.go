// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// NewDependency is a validated dependency edge ready to insert.
type NewDependency struct {
	CrateID         int64
	Req             string
	Kind            string
	Optional        bool
	DefaultFeatures bool
	Features        []string
	Target          string
	ExplicitName    string
}

// Dependency is a stored edge joined with its target crate's name.
type Dependency struct {
	CrateName       string
	Req             string
	Kind            string
	Optional        bool
	DefaultFeatures bool
	Features        []string
	Target          string
	ExplicitName    string
}

// dependencyBatchRows keeps each INSERT under SQLite's bound-parameter
// ceiling.
const dependencyBatchRows = 100

// InsertDependencies inserts every edge of versionID with multi-row
// INSERT statements. Callers validate all edges first; inside a
// transaction either every edge lands or none does.
func InsertDependencies(conn *sqlite.Conn, versionID int64, deps []NewDependency) error {
	for start := 0; start < len(deps); start += dependencyBatchRows {
		end := min(start+dependencyBatchRows, len(deps))
		batch := deps[start:end]

		var query strings.Builder
		query.WriteString(`INSERT INTO dependencies (version_id, crate_id, req, kind, optional, default_features, features, target, explicit_name) VALUES `)
		args := make([]any, 0, len(batch)*9)
		for i, dep := range batch {
			if i > 0 {
				query.WriteString(", ")
			}
			query.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			features := dep.Features
			if features == nil {
				features = []string{}
			}
			encoded, err := json.Marshal(features)
			if err != nil {
				return fmt.Errorf("store: encoding dependency features: %w", err)
			}
			args = append(args, versionID, dep.CrateID, dep.Req, dep.Kind, boolInt(dep.Optional),
				boolInt(dep.DefaultFeatures), string(encoded), nullable(dep.Target), nullable(dep.ExplicitName))
		}
		if err := sqlitex.ExecuteTransient(conn, query.String(), &sqlitex.ExecOptions{Args: args}); err != nil {
			return fmt.Errorf("store: inserting dependencies: %w", err)
		}
	}
	return nil
}

// DependenciesOf lists a version's edges in insertion order.
func DependenciesOf(conn *sqlite.Conn, versionID int64) ([]Dependency, error) {
	var deps []Dependency
	err := sqlitex.Execute(conn, `
		SELECT c.name, d.req, d.kind, d.optional, d.default_features, d.features, d.target, d.explicit_name
		FROM dependencies d JOIN crates c ON c.id = d.crate_id
		WHERE d.version_id = ? ORDER BY d.id`, &sqlitex.ExecOptions{
		Args: []any{versionID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			dep := Dependency{
				CrateName:       stmt.ColumnText(0),
				Req:             stmt.ColumnText(1),
				Kind:            stmt.ColumnText(2),
				Optional:        stmt.ColumnInt64(3) != 0,
				DefaultFeatures: stmt.ColumnInt64(4) != 0,
				Target:          stmt.ColumnText(6),
				ExplicitName:    stmt.ColumnText(7),
			}
			if err := json.Unmarshal([]byte(stmt.ColumnText(5)), &dep.Features); err != nil {
				return fmt.Errorf("decoding dependency features: %w", err)
			}
			deps = append(deps, dep)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing dependencies: %w", err)
	}
	return deps, nil
}
