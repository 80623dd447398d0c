// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/listenstar/internal/validation"
)

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}

	if err := c.validateWatch(); err != nil {
		return err
	}

	if err := c.validateJournal(); err != nil {
		return err
	}

	return c.validateServer()
}

// validateWatch rejects directory layouts that would feed relocated files
// back into the watcher.
func (c *Config) validateWatch() error {
	ingest := filepath.Clean(c.Watch.IngestDir)
	targets := map[string]string{
		"watch.loaded_dir":     c.Watch.LoadedDir,
		"watch.invalid_dir":    c.Watch.InvalidDir,
		"watch.quarantine_dir": c.Watch.QuarantineDir,
	}
	for name, dir := range targets {
		if filepath.Clean(dir) == ingest {
			return fmt.Errorf("%s must differ from watch.ingest_dir (%s)", name, ingest)
		}
	}

	for i, ext := range c.Watch.Extensions {
		c.Watch.Extensions[i] = strings.ToLower(ext)
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.Enabled && c.Journal.Backend == "badger" && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal.backend=badger")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.RateLimitRequests > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("server.rate_limit_window must be positive when server.rate_limit_requests > 0")
	}
	return nil
}

// SupportsExtension reports whether files with ext run the pipeline.
func (w WatchConfig) SupportsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range w.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
