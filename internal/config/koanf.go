// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"listenstar.yaml",
	"listenstar.yml",
	"config.yaml",
	"/etc/listenstar/config.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvFile is loaded into the process environment before the env layer, if present.
const DotEnvFile = ".env"

// DefaultExtensions are the file extensions that run the pipeline.
var DefaultExtensions = []string{".json", ".jsonl", ".ndjson", ".txt"}

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			IngestDir:     "./data",
			LoadedDir:     "./processed/loaded",
			InvalidDir:    "./processed/invalid",
			QuarantineDir: "./processed/invalid_data",
			Extensions:    append([]string(nil), DefaultExtensions...),
		},
		Database: DatabaseConfig{
			Driver:    "duckdb",
			Path:      "./db/listens.duckdb",
			Threads:   0, // 0 = use runtime.NumCPU()
			MaxMemory: "1GB",
			Timeout:   2 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Topic:            "listen.files",
			BufferSize:       256,
			MaxRunsPerSecond: 0,
			SettleDelay:      250 * time.Millisecond,
			TempSettleDelay:  time.Minute,
			ProcessExisting:  false,
			CloseTimeout:     30 * time.Second,
		},
		Journal: JournalConfig{
			Enabled: true,
			Backend: "badger",
			Path:    "./db/journal",
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8089,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Breaker: BreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    0,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the default configuration, already valid.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration from defaults, the first config file found and the
// environment, in that order of increasing priority.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// CONFIG_PATH and DefaultConfigPaths.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}

	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless given explicitly)
	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// INGEST_DIR -> watch.ingest_dir, DB_DRIVER -> database.driver
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"watch.extensions",
	"server.cors_allowed_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower case) to koanf paths.
var envMappings = map[string]string{
	// Watch
	"ingest_dir":       "watch.ingest_dir",
	"loaded_dir":       "watch.loaded_dir",
	"invalid_dir":      "watch.invalid_dir",
	"quarantine_dir":   "watch.quarantine_dir",
	"watch_extensions": "watch.extensions",

	// Database
	"db_driver":     "database.driver",
	"db_path":       "database.path",
	"duckdb_path":   "database.path",
	"db_threads":    "database.threads",
	"db_max_memory": "database.max_memory",
	"db_timeout":    "database.timeout",

	// Dispatch
	"dispatch_topic":             "dispatch.topic",
	"dispatch_buffer_size":       "dispatch.buffer_size",
	"dispatch_max_runs_per_sec":  "dispatch.max_runs_per_second",
	"dispatch_settle_delay":      "dispatch.settle_delay",
	"dispatch_temp_settle_delay": "dispatch.temp_settle_delay",
	"dispatch_process_existing":  "dispatch.process_existing",
	"dispatch_close_timeout":     "dispatch.close_timeout",

	// Journal
	"journal_enabled": "journal.enabled",
	"journal_backend": "journal.backend",
	"journal_path":    "journal.path",

	// Server
	"http_enabled":        "server.enabled",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"cors_origins":        "server.cors_allowed_origins",

	// Breaker
	"breaker_enabled":      "breaker.enabled",
	"breaker_max_failures": "breaker.max_failures",
	"breaker_timeout":      "breaker.timeout",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so unrelated environment
// does not leak into the configuration.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
