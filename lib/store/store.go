// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/sqlitepool"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Config holds the parameters for opening the record store.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize is the number of connections. Defaults to 4.
	PoolSize int

	// Clock stamps created_at and updated_at columns. Required.
	Clock clock.Clock

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

// Store owns the registry database. Operations that must compose into
// one transaction are package-level functions taking a *sqlite.Conn;
// callers obtain the connection through Transact or Read.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens the database and brings its schema up to date.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("store: Logger is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       cfg.Path,
		PoolSize:   poolSize,
		Logger:     cfg.Logger,
		Migrations: Migrations,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Clock returns the store's clock.
func (s *Store) Clock() clock.Clock { return s.clock }

// Now returns the current time from the store's clock.
func (s *Store) Now() time.Time { return s.clock.Now() }

// Transact runs fn inside an IMMEDIATE transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *Store) Transact(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return s.pool.Transact(ctx, fn)
}

// Read runs fn on a borrowed connection outside any explicit
// transaction. Use it for lookups that need no isolation beyond a
// single statement.
func (s *Store) Read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// nullable binds an empty string as NULL.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func fromNanos(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}
