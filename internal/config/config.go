// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Watch      WatchConfig      `koanf:"watch"`
	Database   DatabaseConfig   `koanf:"database"`
	Dispatch   DispatchConfig   `koanf:"dispatch"`
	Journal    JournalConfig    `koanf:"journal"`
	Server     ServerConfig     `koanf:"server"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// WatchConfig describes the ingest area and where processed files go.
type WatchConfig struct {
	// IngestDir is watched (non-recursively) for new files.
	IngestDir string `koanf:"ingest_dir" validate:"required"`

	// LoadedDir receives files whose records were loaded.
	LoadedDir string `koanf:"loaded_dir" validate:"required"`

	// InvalidDir receives files that failed any stage or have an unsupported extension.
	InvalidDir string `koanf:"invalid_dir" validate:"required"`

	// QuarantineDir receives one JSON array of rejected records per run.
	QuarantineDir string `koanf:"quarantine_dir" validate:"required"`

	// Extensions lists the file extensions that run the pipeline.
	// Default: .json, .jsonl, .ndjson, .txt
	Extensions []string `koanf:"extensions" validate:"min=1,dive,startswith=."`
}

// Directories returns every directory the watcher and runner need.
func (w WatchConfig) Directories() []string {
	return []string{w.IngestDir, w.LoadedDir, w.InvalidDir, w.QuarantineDir}
}

// DatabaseConfig configures the star-schema store.
type DatabaseConfig struct {
	// Driver selects the embedded engine: duckdb or sqlite.
	Driver string `koanf:"driver" validate:"oneof=duckdb sqlite"`

	Path string `koanf:"path" validate:"required"`

	// Threads is the number of DuckDB threads (0 = runtime.NumCPU()).
	Threads int `koanf:"threads" validate:"min=0"`

	// MaxMemory caps DuckDB memory, e.g. "1GB". Ignored by sqlite.
	MaxMemory string `koanf:"max_memory"`

	// Timeout bounds every store operation of one run.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// DispatchConfig tunes the in-process event queue.
type DispatchConfig struct {
	Topic string `koanf:"topic" validate:"required"`

	// BufferSize is the Watermill GoChannel output buffer.
	BufferSize int64 `koanf:"buffer_size" validate:"min=1"`

	// MaxRunsPerSecond throttles pipeline runs (0 = unlimited).
	MaxRunsPerSecond float64 `koanf:"max_runs_per_second" validate:"min=0"`

	// SettleDelay is waited after a create event before the file is read,
	// giving writers time to finish.
	SettleDelay time.Duration `koanf:"settle_delay" validate:"min=0"`

	// TempSettleDelay replaces SettleDelay for names writers use while a file
	// is in progress (dotfiles, .part, .tmp, ...). Such files are normally
	// renamed before it expires; any still present are routed to invalid.
	TempSettleDelay time.Duration `koanf:"temp_settle_delay" validate:"min=0"`

	// ProcessExisting queues files already present in the ingest directory at startup.
	ProcessExisting bool `koanf:"process_existing"`

	// CloseTimeout bounds router shutdown.
	CloseTimeout time.Duration `koanf:"close_timeout" validate:"min=0"`
}

// JournalConfig configures the run journal.
type JournalConfig struct {
	Enabled bool `koanf:"enabled"`

	// Backend is badger (persistent) or memory.
	Backend string `koanf:"backend" validate:"oneof=badger memory"`

	// Path is the BadgerDB directory.
	Path string `koanf:"path"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`

	// RateLimitRequests per RateLimitWindow per client IP (0 disables).
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=0"`

	// CORSAllowedOrigins enables CORS for these origins. Empty disables CORS.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// BreakerConfig configures the circuit breaker around store access.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxFailures is the number of consecutive failed runs that opens the circuit.
	MaxFailures uint32 `koanf:"max_failures" validate:"min=1"`

	// Timeout is how long the circuit stays open before a trial run.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`

	// Interval clears failure counts while closed (0 never clears).
	Interval time.Duration `koanf:"interval" validate:"min=0"`
}

// SupervisorConfig mirrors suture's restart policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"min=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"min=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"min=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// String summarizes the configuration for startup logs without dumping it.
func (c *Config) String() string {
	return fmt.Sprintf("ingest=%s db=%s:%s journal=%t server=%t",
		c.Watch.IngestDir, c.Database.Driver, c.Database.Path, c.Journal.Enabled, c.Server.Enabled)
}
