// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"errors"
	"time"

	"github.com/tomtom215/listenstar/internal/database"
	"github.com/tomtom215/listenstar/internal/models"
)

// RunResult describes one pipeline run over one source file.
type RunResult struct {
	RunID       string
	Source      string
	Destination string // empty when the file could not be moved
	Outcome     string // models.OutcomeLoaded, OutcomeInvalid or OutcomeFailed

	// Err is the first stage failure (a *StageError), nil when every stage passed.
	Err error
	// Relocation is set when moving the file did not fully succeed.
	Relocation *RelocationError

	Quarantine string // path of the quarantine file, if records were rejected
	Extracted  int
	Valid      int
	Invalid    int
	Load       database.LoadStats

	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports a clean run: every stage passed and the file was fully moved
// to the loaded directory.
func (r *RunResult) OK() bool {
	return r.Err == nil && r.Relocation == nil && r.Outcome == models.OutcomeLoaded
}

// FailedStage returns the stage that failed, or "".
func (r *RunResult) FailedStage() string {
	var se *StageError
	if errors.As(r.Err, &se) {
		return se.Stage
	}
	if r.Relocation != nil && !r.Relocation.Copied {
		return StageRelocate
	}
	return ""
}

// Warning describes a relocation that copied the file but left the source
// behind; "" otherwise.
func (r *RunResult) Warning() string {
	if r.Relocation != nil && r.Relocation.Copied {
		return r.Relocation.Error()
	}
	return ""
}

// ToSummary converts the result for the run journal and the ops API.
func (r *RunResult) ToSummary() models.RunSummary {
	s := models.RunSummary{
		RunID:       r.RunID,
		Source:      r.Source,
		Destination: r.Destination,
		Outcome:     r.Outcome,
		FailedStage: r.FailedStage(),
		Warning:     r.Warning(),
		Quarantine:  r.Quarantine,
		Extracted:   r.Extracted,
		Valid:       r.Valid,
		Invalid:     r.Invalid,
		Inserted:    r.Load.Inserted(),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}

	var errs []error
	if r.Err != nil {
		errs = append(errs, r.Err)
	}
	if r.Relocation != nil && !r.Relocation.Copied {
		errs = append(errs, r.Relocation)
	}
	if err := errors.Join(errs...); err != nil {
		s.Error = err.Error()
	}
	return s
}
