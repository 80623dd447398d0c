// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// histogramCount extracts the sample count of one histogram series.
func histogramCount(t *testing.T, vec *prometheus.HistogramVec, label string) uint64 {
	t.Helper()

	observer, err := vec.GetMetricWithLabelValues(label)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%q) error = %v", label, err)
	}
	var m io_prometheus_client.Metric
	if err := observer.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordRun(t *testing.T) {
	beforeRuns := testutil.ToFloat64(PipelineRuns.WithLabelValues("loaded"))
	beforeInvalid := testutil.ToFloat64(Records.WithLabelValues("invalid"))

	RecordRun("loaded", 3, 2, 1)

	if got := testutil.ToFloat64(PipelineRuns.WithLabelValues("loaded")) - beforeRuns; got != 1 {
		t.Errorf("runs{loaded} delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(Records.WithLabelValues("invalid")) - beforeInvalid; got != 1 {
		t.Errorf("records{invalid} delta = %v, want 1", got)
	}
}

func TestRecordStage(t *testing.T) {
	before := histogramCount(t, PipelineStageDuration, "transform")

	RecordStage("transform", 20*time.Millisecond)
	RecordStage("transform", 2*time.Second)

	if got := histogramCount(t, PipelineStageDuration, "transform") - before; got != 2 {
		t.Errorf("stage{transform} sample delta = %d, want 2", got)
	}
}

func TestRecordRowsInserted(t *testing.T) {
	tests := []struct {
		name  string
		rows  int64
		delta float64
	}{
		{"new rows", 5, 5},
		{"nothing new", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(RowsInserted.WithLabelValues("dim_artist"))
			RecordRowsInserted("dim_artist", tt.rows)
			if got := testutil.ToFloat64(RowsInserted.WithLabelValues("dim_artist")) - before; got != tt.delta {
				t.Errorf("rows{dim_artist} delta = %v, want %v", got, tt.delta)
			}
		})
	}
}

func TestRecordRelocationAndDispatch(t *testing.T) {
	beforeReloc := testutil.ToFloat64(Relocations.WithLabelValues("invalid", "partial"))
	beforeEvents := testutil.ToFloat64(DispatchEvents.WithLabelValues("queued"))

	RecordRelocation("invalid", "partial")
	RecordDispatchEvent("queued")

	if got := testutil.ToFloat64(Relocations.WithLabelValues("invalid", "partial")) - beforeReloc; got != 1 {
		t.Errorf("relocations delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(DispatchEvents.WithLabelValues("queued")) - beforeEvents; got != 1 {
		t.Errorf("dispatch events delta = %v, want 1", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	RecordBreakerTransition("store", "closed", "open", 2)

	if got := testutil.ToFloat64(BreakerState.WithLabelValues("store")); got != 2 {
		t.Errorf("breaker state = %v, want 2", got)
	}

	RecordBreakerTransition("store", "open", "half-open", 1)
	if got := testutil.ToFloat64(BreakerState.WithLabelValues("store")); got != 1 {
		t.Errorf("breaker state = %v, want 1", got)
	}
}

func TestMetricGathering(t *testing.T) {
	RecordAPIRequest("GET", "/healthz", "200", time.Millisecond)
	RecordBreakerRequest("store", "success")

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("GatherAndLint() error = %v", err)
	}
	for _, p := range problems {
		if len(p.Metric) > len("listenstar_") && p.Metric[:len("listenstar_")] == "listenstar_" {
			t.Errorf("lint problem in %s: %s", p.Metric, p.Text)
		}
	}
}
