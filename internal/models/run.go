// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package models

import "time"

// Run outcomes recorded in the journal.
const (
	OutcomeLoaded  = "loaded"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed" // relocation itself failed
)

// RunSummary is the persisted record of one pipeline run.
//
// It is what the run journal stores and what the ops API returns from
// /api/v1/runs, so every field is JSON friendly.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination,omitempty"`
	Outcome     string    `json:"outcome"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Warning     string    `json:"warning,omitempty"`
	Quarantine  string    `json:"quarantine,omitempty"`
	Extracted   int       `json:"extracted"`
	Valid       int       `json:"valid"`
	Invalid     int       `json:"invalid"`
	Inserted    int64     `json:"inserted"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
