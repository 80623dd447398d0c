// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package models

import "time"

// APIResponse is the envelope returned by every ops API endpoint.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"..."}}
//	{"status":"error","error":{"code":"BAD_REQUEST","message":"..."},"metadata":{...}}
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TableCount is the row count of one store table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// IngestRequest is the body of POST /api/v1/ingest.
type IngestRequest struct {
	Path string `json:"path" validate:"required"`
}

// IngestResponse acknowledges a queued file.
type IngestResponse struct {
	Path          string `json:"path"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status         string  `json:"status"` // healthy or degraded
	Version        string  `json:"version,omitempty"`
	PipelineState  string  `json:"pipeline_state"`
	BreakerState   string  `json:"breaker_state"`
	JournalEnabled bool    `json:"journal_enabled"`
	Uptime         float64 `json:"uptime_seconds"`
}
