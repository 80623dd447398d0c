// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package journal

import (
	"context"
	"sync"

	"github.com/tomtom215/listenstar/internal/models"
)

// MemoryJournal implements Journal in memory, keeping the newest capacity runs.
type MemoryJournal struct {
	mu       sync.RWMutex
	runs     []models.RunSummary
	capacity int
}

// NewMemoryJournal creates a journal holding at most capacity runs.
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = MaxLimit
	}
	return &MemoryJournal{capacity: capacity}
}

// Record appends run, evicting the oldest entry when full.
func (j *MemoryJournal) Record(_ context.Context, run models.RunSummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.runs) == j.capacity {
		copy(j.runs, j.runs[1:])
		j.runs = j.runs[:len(j.runs)-1]
	}
	j.runs = append(j.runs, run)
	return nil
}

// Recent returns copies of the newest runs first.
func (j *MemoryJournal) Recent(_ context.Context, limit int) ([]models.RunSummary, error) {
	limit = clampLimit(limit)

	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit > len(j.runs) {
		limit = len(j.runs)
	}
	out := make([]models.RunSummary, 0, limit)
	for i := len(j.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.runs[i])
	}
	return out, nil
}

// Close is a no-op.
func (j *MemoryJournal) Close() error {
	return nil
}
