// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/database"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/metrics"
)

// storeBreakerName labels the breaker in logs and metrics.
const storeBreakerName = "store"

// storeBreaker guards the load stage. After MaxFailures consecutive store
// failures the breaker opens and runs fail fast in the load stage until
// Timeout elapses.
type storeBreaker struct {
	cb *gobreaker.CircuitBreaker[database.LoadStats]
}

// newStoreBreaker returns nil when the breaker is disabled.
func newStoreBreaker(cfg config.BreakerConfig) *storeBreaker {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        storeBreakerName,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.RecordBreakerTransition(name, from.String(), to.String(), int(to))
		},
	}

	return &storeBreaker{cb: gobreaker.NewCircuitBreaker[database.LoadStats](settings)}
}

// Execute runs fn through the breaker. A nil breaker calls fn directly.
func (b *storeBreaker) Execute(fn func() (database.LoadStats, error)) (database.LoadStats, error) {
	if b == nil {
		return fn()
	}

	stats, err := b.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBreakerRequest(storeBreakerName, "rejected")
	case err != nil:
		metrics.RecordBreakerRequest(storeBreakerName, "failure")
	default:
		metrics.RecordBreakerRequest(storeBreakerName, "success")
	}
	return stats, err
}

// State reports the breaker state; "disabled" for a nil breaker.
func (b *storeBreaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}
