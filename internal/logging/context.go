// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// runIDKey identifies one pipeline run.
	runIDKey contextKey = "run_id"

	// correlationIDKey ties log lines of one request or event together.
	correlationIDKey contextKey = "correlation_id"
)

// GenerateRunID returns a new pipeline run ID (a full UUID).
func GenerateRunID() string {
	return uuid.NewString()
}

// GenerateCorrelationID returns the first 8 characters of a UUID.
func GenerateCorrelationID() string {
	return uuid.NewString()[:8]
}

// ContextWithRunID returns ctx carrying a run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run ID, or "" if none.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithCorrelationID returns ctx carrying a correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns ctx carrying a fresh correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID, or "" if none.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with the run and correlation IDs of ctx attached.
//
//	logging.Ctx(ctx).Info().Str("stage", "extract").Msg("Stage started")
//	// {"level":"info","run_id":"…","correlation_id":"ab12cd34","stage":"extract",…}
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	if id := RunIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("run_id", id)
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	l := logCtx.Logger()
	return &l
}
