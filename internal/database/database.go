// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package database owns the star-schema store: opening a connection on one of
// the supported embedded engines, creating the schema, and loading
// transformed listens table by table.
//
// Two engines are supported through database/sql:
//
//   - duckdb (default): github.com/duckdb/duckdb-go/v2, a columnar file store
//     suited to the analytical queries run against the star schema.
//   - sqlite: modernc.org/sqlite, a pure-Go engine for builds without cgo.
//
// A DB is opened per pipeline run and closed before the run returns; it is
// not a pooled, long-lived handle.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/logging"
)

// Driver names accepted in config.DatabaseConfig.Driver.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// defaultQueryTimeout applies when neither the caller nor the config sets a deadline.
const defaultQueryTimeout = 30 * time.Second

// DB wraps a store connection.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// Open connects to the store named by cfg. The parent directory of the
// database file is created if needed. The schema is not touched; call
// CreateSchema for that.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is nil")
	}

	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	driverName, dsn, err := connectionString(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, cfg: cfg}

	ctx, cancel := db.ensureContext(context.Background())
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	logging.Debug().
		Str("driver", cfg.Driver).
		Str("path", cfg.Path).
		Msg("Database opened")

	return db, nil
}

// connectionString maps the config onto a database/sql driver name and DSN.
func connectionString(cfg *config.DatabaseConfig) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case DriverDuckDB, "":
		threads := cfg.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		maxMemory := cfg.MaxMemory
		if maxMemory == "" {
			maxMemory = "1GB"
		}
		// Disable auto-install/auto-load to prevent hangs in restricted network environments
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
			cfg.Path, threads, maxMemory)
		return "duckdb", dsn, nil
	case DriverSQLite:
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
		return "sqlite", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Driver returns the configured engine name.
func (db *DB) Driver() string {
	if db.cfg.Driver == "" {
		return DriverDuckDB
	}
	return db.cfg.Driver
}

// Conn returns the underlying SQL connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks that the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close flushes the DuckDB WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if db.Driver() == DriverDuckDB {
		ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
		if err := db.Checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}

	return db.conn.Close()
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := "CHECKPOINT"
	if db.Driver() == DriverSQLite {
		query = "PRAGMA wal_checkpoint(TRUNCATE)"
	}
	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// ensureContext bounds ctx by the configured timeout when it has no deadline.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := defaultQueryTimeout
	if db.cfg != nil && db.cfg.Timeout > 0 {
		timeout = db.cfg.Timeout
	}

	if ctx == nil {
		return context.WithTimeout(context.Background(), timeout)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}
