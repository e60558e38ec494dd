// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the registry's SQLite connection pool.
//
// The record store, the rate limiter and the job queue all share one
// database file through this package, so that a publish can debit a
// token, insert its crate and version rows and enqueue follow-up jobs
// with ordinary SQLite transactions. It wraps zombiezen.com/go/sqlite
// with production defaults.
//
// # Pragmas
//
// Every connection in the pool is initialized with:
//
//   - journal_mode=WAL: concurrent readers and a single writer.
//   - synchronous=NORMAL: transactions survive process crashes.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//     instead of returning SQLITE_BUSY immediately. Concurrent
//     publishes queue behind each other here.
//   - foreign_keys=ON: versions, dependency edges and ownership rows
//     reference their crate and user rows.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Migrations
//
// Config.Migrations is an append-only list of SQL scripts. The
// database's PRAGMA user_version records how many have been applied.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       "/var/lib/registry/registry.db",
//	    Logger:     logger,
//	    Migrations: store.Migrations,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.Transact(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "UPDATE ...", nil)
//	})
//
// Callers that compose several packages into one transaction take a
// connection themselves and use sqlitex.ImmediateTransaction.
package sqlitepool
