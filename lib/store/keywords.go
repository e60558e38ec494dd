// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/registry/lib/metadata"
)

// ReplaceKeywords sets a crate's keywords to exactly keywords,
// creating keyword rows on first use. Keywords are stored lowercase.
func ReplaceKeywords(conn *sqlite.Conn, crateID int64, keywords []string) error {
	if err := sqlitex.Execute(conn, `DELETE FROM crates_keywords WHERE crate_id = ?`, &sqlitex.ExecOptions{
		Args: []any{crateID},
	}); err != nil {
		return fmt.Errorf("store: clearing keywords: %w", err)
	}
	for _, keyword := range keywords {
		lower := strings.ToLower(keyword)
		if err := sqlitex.Execute(conn, `INSERT INTO keywords (keyword) VALUES (?) ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
			Args: []any{lower},
		}); err != nil {
			return fmt.Errorf("store: creating keyword %s: %w", lower, err)
		}
		if err := sqlitex.Execute(conn, `
			INSERT INTO crates_keywords (crate_id, keyword_id)
			SELECT ?, id FROM keywords WHERE keyword = ?
			ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
			Args: []any{crateID, lower},
		}); err != nil {
			return fmt.Errorf("store: linking keyword %s: %w", lower, err)
		}
	}
	return nil
}

// CrateKeywords lists a crate's keywords alphabetically.
func CrateKeywords(conn *sqlite.Conn, crateID int64) ([]string, error) {
	return listStrings(conn, `
		SELECT k.keyword FROM crates_keywords ck JOIN keywords k ON k.id = ck.keyword_id
		WHERE ck.crate_id = ? ORDER BY k.keyword`, crateID)
}

// SeedCategories inserts or refreshes the category taxonomy.
func SeedCategories(conn *sqlite.Conn, categories []metadata.Category) error {
	for _, category := range categories {
		err := sqlitex.Execute(conn, `
			INSERT INTO categories (slug, name, description) VALUES (?, ?, ?)
			ON CONFLICT (slug) DO UPDATE SET name = excluded.name, description = excluded.description`, &sqlitex.ExecOptions{
			Args: []any{category.Slug, category.Name, nullable(category.Description)},
		})
		if err != nil {
			return fmt.Errorf("store: seeding category %s: %w", category.Slug, err)
		}
	}
	return nil
}

// ReplaceCategories sets a crate's categories to the known subset of
// slugs and returns the slugs that matched no category, in input
// order. Unknown slugs are not an error.
func ReplaceCategories(conn *sqlite.Conn, crateID int64, slugs []string) (invalid []string, err error) {
	if err := sqlitex.Execute(conn, `DELETE FROM crates_categories WHERE crate_id = ?`, &sqlitex.ExecOptions{
		Args: []any{crateID},
	}); err != nil {
		return nil, fmt.Errorf("store: clearing categories: %w", err)
	}
	invalid = []string{}
	for _, slug := range slugs {
		var categoryID int64
		err := sqlitex.Execute(conn, `SELECT id FROM categories WHERE slug = ?`, &sqlitex.ExecOptions{
			Args: []any{slug},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				categoryID = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("store: looking up category %s: %w", slug, err)
		}
		if categoryID == 0 {
			invalid = append(invalid, slug)
			continue
		}
		if err := sqlitex.Execute(conn, `INSERT INTO crates_categories (crate_id, category_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
			Args: []any{crateID, categoryID},
		}); err != nil {
			return nil, fmt.Errorf("store: linking category %s: %w", slug, err)
		}
	}
	return invalid, nil
}

// CrateCategories lists a crate's category slugs alphabetically.
func CrateCategories(conn *sqlite.Conn, crateID int64) ([]string, error) {
	return listStrings(conn, `
		SELECT c.slug FROM crates_categories cc JOIN categories c ON c.id = cc.category_id
		WHERE cc.crate_id = ? ORDER BY c.slug`, crateID)
}

func listStrings(conn *sqlite.Conn, query string, args ...any) ([]string, error) {
	values := []string{}
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			values = append(values, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return values, nil
}
