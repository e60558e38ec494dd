// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a SQLite connection pool.
// Path is required; all other fields have defaults.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. The file is created if it does not
	// exist. Use ":memory:" for an in-memory database (useful in
	// tests, but the pool size must be 1 since each in-memory
	// connection is independent).
	Path string

	// PoolSize is the number of connections in the pool. If zero or
	// negative, defaults to max(runtime.NumCPU(), 4). For write-heavy
	// workloads, 4-8 is usually sufficient because SQLite serializes
	// writes regardless of pool size. Extra connections help when
	// multiple goroutines need concurrent reads.
	PoolSize int

	// Logger receives operational messages (pool open/close, pragma
	// errors). If nil, a no-op logger is used.
	Logger *slog.Logger

	// Migrations is the ordered list of schema scripts for this
	// database. Migration i (zero-based) moves PRAGMA user_version
	// from i to i+1. Open applies every migration the file has not
	// seen yet, each in its own IMMEDIATE transaction, before
	// returning. Entries must never be edited once released; append
	// new ones instead.
	Migrations []string

	// OnConnect is called once per connection after standard pragmas
	// are applied, for per-connection setup such as custom functions.
	// If OnConnect returns an error, the connection is discarded and
	// the error is returned to the caller of Take.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of SQLite connections with registry-standard
// pragmas. It wraps sqlitex.Pool and exposes the same Take/Put API.
// The pool is safe for concurrent use; a single connection belongs to
// one goroutine between Take and Put.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates a new connection pool, applies the standard pragmas to
// every connection and brings the schema up to date with
// cfg.Migrations. The database file is created if it does not exist.
//
// The caller must call Close when the pool is no longer needed.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	pool := &Pool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
	}

	if err := pool.migrate(cfg.Migrations); err != nil {
		inner.Close()
		return nil, err
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
		"schema_version", len(cfg.Migrations),
	)
	return pool, nil
}

// Transact runs fn inside an IMMEDIATE transaction on a borrowed
// connection. The transaction commits when fn returns nil and rolls
// back otherwise, including on panic. IMMEDIATE takes the write lock
// up front so two writers never deadlock trying to upgrade a read
// lock.
func (p *Pool) Transact(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlitepool: begin: %w", err)
	}
	defer endTransaction(&err)

	return fn(conn)
}

// SchemaVersion reports the database's PRAGMA user_version.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer p.Put(conn)
	return userVersion(conn)
}

func (p *Pool) migrate(migrations []string) error {
	if len(migrations) == 0 {
		return nil
	}
	conn, err := p.inner.Take(context.Background())
	if err != nil {
		return fmt.Errorf("sqlitepool: take for migration: %w", err)
	}
	defer p.inner.Put(conn)

	for {
		applied, err := applyNextMigration(conn, migrations)
		if err != nil {
			return err
		}
		if applied < 0 {
			return nil
		}
		p.logger.Info("sqlite migration applied", "path", p.path, "version", applied+1)
	}
}

// applyNextMigration applies the first migration the database has not
// seen and returns its index, or -1 when the schema is current. The
// version check happens inside the write transaction so two processes
// opening the same file never apply a migration twice.
func applyNextMigration(conn *sqlite.Conn, migrations []string) (index int, err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return -1, fmt.Errorf("sqlitepool: begin migration: %w", err)
	}
	defer endTransaction(&err)

	current, err := userVersion(conn)
	if err != nil {
		return -1, err
	}
	if current > len(migrations) {
		return -1, fmt.Errorf("sqlitepool: database schema version %d is newer than this binary (%d)", current, len(migrations))
	}
	if current == len(migrations) {
		return -1, nil
	}
	if err := sqlitex.ExecuteScript(conn, migrations[current], nil); err != nil {
		return -1, fmt.Errorf("sqlitepool: migration %d: %w", current+1, err)
	}
	if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA user_version = %d", current+1), nil); err != nil {
		return -1, fmt.Errorf("sqlitepool: recording schema version %d: %w", current+1, err)
	}
	return current, nil
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}

// Take borrows a connection from the pool. Blocks until a connection
// is available or ctx is cancelled. The caller MUST call Put when done
// with the connection, typically via defer:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil (no-op).
// After Put, the caller must not use the connection.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes all connections in the pool. Blocks until all borrowed
// connections are returned. After Close, Take returns an error.
func (p *Pool) Close() error {
	err := p.inner.Close()
	if err != nil {
		p.logger.Error("sqlite pool close error",
			"path", p.path,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}

// prepareConnection applies the standard pragmas and then calls the
// optional OnConnect callback. This runs once per connection in the
// pool, on first use.
func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-8192",
		"PRAGMA mmap_size=268435456",
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}

	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("sqlitepool: OnConnect: %w", err)
		}
	}

	return nil
}
