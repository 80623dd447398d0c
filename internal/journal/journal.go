// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package journal keeps a history of pipeline runs so operators can see which
// files were loaded, quarantined or routed to invalid, and why.
//
// Two backends implement Journal: BadgerJournal persists runs across restarts
// in an embedded BadgerDB; MemoryJournal keeps a bounded history in memory.
package journal

import (
	"context"
	"fmt"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/models"
)

// Journal records pipeline runs.
type Journal interface {
	// Record stores one run summary.
	Record(ctx context.Context, run models.RunSummary) error

	// Recent returns up to limit runs, newest first. limit <= 0 means DefaultLimit.
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)

	// Close releases the backend.
	Close() error
}

const (
	// DefaultLimit is the page size of Recent when no limit is given.
	DefaultLimit = 50

	// MaxLimit caps a single Recent call.
	MaxLimit = 1000
)

// Open builds the journal selected by cfg. It returns nil, nil when the
// journal is disabled; callers treat a nil Journal as "do not record".
func Open(cfg config.JournalConfig) (Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryJournal(MaxLimit), nil
	case "badger", "":
		j, err := OpenBadger(cfg.Path)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unsupported journal backend %q", cfg.Backend)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
