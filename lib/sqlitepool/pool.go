// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas
// every warden store expects: WAL journaling for concurrent readers,
// a busy timeout so writers queue instead of failing, and in-memory
// temp storage. The ledger is the primary consumer.
package sqlitepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Config holds the parameters for opening a pool. Path is required.
type Config struct {
	// Path is the database file, created if absent. ":memory:" gives
	// an in-memory database; pool size must then be 1 because each
	// in-memory connection is independent.
	Path string

	// PoolSize is the connection count. Defaults to 4. Ledger writes
	// serialize inside SQLite regardless, so extra connections only
	// help concurrent reads.
	PoolSize int

	// Logger receives open/close messages. Nil discards.
	Logger *slog.Logger

	// Schema, when non-empty, is executed once per connection after
	// the pragmas. Use CREATE TABLE IF NOT EXISTS statements so
	// repeated application is harmless.
	Schema string
}

// Pool is a fixed-size SQLite connection pool. Safe for concurrent
// use; individual connections are not, so each goroutine must Take
// its own connection and Put it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are initialized lazily on first
// Take. The caller must Close the pool when done.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
				"PRAGMA temp_store=MEMORY",
			} {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if cfg.Schema != "" {
				if err := sqlitex.ExecuteScript(conn, cfg.Schema, nil); err != nil {
					return fmt.Errorf("sqlitepool: applying schema: %w", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened", "path", cfg.Path, "pool_size", size)
	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// cancelled. The caller must Put it back, typically via defer.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a borrowed connection. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection, blocking until borrowed connections
// are returned.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}
