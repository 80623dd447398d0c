// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

/*
Package metrics provides Prometheus instrumentation for the ingestion pipeline.

All collectors register with the default registry through promauto and are
exposed by the ops server at /metrics:

	curl http://127.0.0.1:8089/metrics

# Available Metrics

Pipeline:
  - listenstar_pipeline_runs_total{outcome}: runs by outcome (loaded, invalid, failed)
  - listenstar_pipeline_stage_duration_seconds{stage}: stage latency (histogram)
  - listenstar_records_total{kind}: extracted, valid and invalid records
  - listenstar_rows_inserted_total{table}: rows new to each star-schema table
  - listenstar_relocations_total{route,result}: source file moves

Dispatch:
  - listenstar_dispatch_events_total{kind}: watcher and queue events
  - listenstar_dispatch_queue_depth: files waiting for the pipeline

Circuit breaker:
  - listenstar_breaker_state{name}: 0=closed, 1=half-open, 2=open
  - listenstar_breaker_requests_total{name,result}
  - listenstar_breaker_state_transitions_total{name,from_state,to_state}

Ops API:
  - listenstar_api_requests_total{method,endpoint,status_code}
  - listenstar_api_request_duration_seconds{method,endpoint}

# Usage

	start := time.Now()
	records, err := extract.File(path)
	metrics.RecordStage("extract", time.Since(start))
*/
package metrics
