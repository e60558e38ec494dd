// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the registry's authoritative record store: crates,
// versions, dependency edges, owners, teams, keywords, categories,
// reserved names and follows, in one SQLite database opened through
// lib/sqlitepool.
//
// Most operations are package-level functions that take a
// *sqlite.Conn. They do not open transactions of their own, so the
// publish pipeline can run a crate insert, a version insert, its
// dependency batch and its job enqueues inside a single
// [Store.Transact] call, and a failure anywhere rolls all of them
// back.
//
// Crate names are unique by [cratename.Canonical] form. Dependency
// edges resolve their target by exact name ([CrateByExactName]).
package store
