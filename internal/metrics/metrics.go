// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"}, // "loaded", "invalid", "failed"
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listenstar_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"stage"},
	)

	Records = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_records_total",
			Help: "Total number of source records by kind",
		},
		[]string{"kind"}, // "extracted", "valid", "invalid"
	)

	RowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_rows_inserted_total",
			Help: "Total number of rows newly inserted per table",
		},
		[]string{"table"},
	)

	Relocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_relocations_total",
			Help: "Total number of source file relocations",
		},
		[]string{"route", "result"}, // route: "loaded", "invalid"; result: "success", "partial", "failure"
	)

	// Dispatch Metrics
	DispatchEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_dispatch_events_total",
			Help: "Total number of file-system events seen by the dispatcher",
		},
		[]string{"kind"}, // "queued", "ignored", "processed", "unsupported", "recovered", "watch_error", "enqueue_error"
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "listenstar_dispatch_queue_depth",
			Help: "Files queued but not yet processed",
		},
	)

	// Circuit Breaker Metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listenstar_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listenstar_api_requests_total",
			Help: "Total number of ops API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listenstar_api_request_duration_seconds",
			Help:    "Ops API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordRun records the outcome of one pipeline run.
func RecordRun(outcome string, extracted, valid, invalid int) {
	PipelineRuns.WithLabelValues(outcome).Inc()
	Records.WithLabelValues("extracted").Add(float64(extracted))
	Records.WithLabelValues("valid").Add(float64(valid))
	Records.WithLabelValues("invalid").Add(float64(invalid))
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRowsInserted records new rows for a table.
func RecordRowsInserted(table string, n int64) {
	if n > 0 {
		RowsInserted.WithLabelValues(table).Add(float64(n))
	}
}

// RecordRelocation records a file move. result is "success", "partial"
// (copied but source not removed) or "failure".
func RecordRelocation(route, result string) {
	Relocations.WithLabelValues(route, result).Inc()
}

// RecordDispatchEvent records a dispatcher event.
func RecordDispatchEvent(kind string) {
	DispatchEvents.WithLabelValues(kind).Inc()
}

// RecordBreakerRequest records a call through a circuit breaker.
func RecordBreakerRequest(name, result string) {
	BreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordBreakerTransition records a state change and updates the state gauge.
// States follow gobreaker: 0=closed, 1=half-open, 2=open.
func RecordBreakerTransition(name, from, to string, toState int) {
	BreakerTransitions.WithLabelValues(name, from, to).Inc()
	BreakerState.WithLabelValues(name).Set(float64(toState))
}

// RecordAPIRequest records an ops API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
