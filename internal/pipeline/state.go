// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

// State is the position of the runner in its per-file state machine:
//
//	Idle → Extracting → Validating → Transforming → Loading → Relocating → Idle
//
// Any stage can move to Failed, which still passes through Relocating.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateValidating
	StateTransforming
	StateLoading
	StateRelocating
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateValidating:
		return "validating"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateRelocating:
		return "relocating"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage names used in logs, metrics and StageError.
const (
	StageExtract   = "extract"
	StageValidate  = "validate"
	StageTransform = "transform"
	StageLoad      = "load"
	StageRelocate  = "relocate"
)

// stageState maps a stage to the state the runner is in while it runs.
var stageState = map[string]State{
	StageExtract:   StateExtracting,
	StageValidate:  StateValidating,
	StageTransform: StateTransforming,
	StageLoad:      StateLoading,
	StageRelocate:  StateRelocating,
}
