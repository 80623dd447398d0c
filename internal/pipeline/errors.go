// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidRecords fails the validate stage when every record was quarantined.
	ErrNoValidRecords = errors.New("no valid records")

	// ErrUnsupportedFile marks files routed to invalid without processing.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// StageError wraps the failure of one pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Relocation phases.
const (
	PhaseCopy   = "copy"
	PhaseRemove = "remove"
)

// RelocationError reports a failed file move. With Phase == PhaseRemove the
// destination copy is complete (Copied is true) but the source still exists.
type RelocationError struct {
	Phase  string
	Source string
	Dest   string
	Copied bool
	Err    error
}

func (e *RelocationError) Error() string {
	if e.Copied {
		return fmt.Sprintf("relocate %s: copied to %s but %s failed: %v", e.Source, e.Dest, e.Phase, e.Err)
	}
	return fmt.Sprintf("relocate %s: %s failed: %v", e.Source, e.Phase, e.Err)
}

func (e *RelocationError) Unwrap() error {
	return e.Err
}
