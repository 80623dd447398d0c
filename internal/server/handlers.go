// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listenstar/internal/dispatch"
	"github.com/tomtom215/listenstar/internal/journal"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/models"
	"github.com/tomtom215/listenstar/internal/validation"
)

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// health reports pipeline and breaker state. An open breaker marks the
// service degraded but still answers 200, so probes only fail when the
// process is gone.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:         "healthy",
		Version:        s.deps.Version,
		PipelineState:  "unknown",
		BreakerState:   "disabled",
		JournalEnabled: s.deps.Journal != nil,
		Uptime:         time.Since(s.started).Seconds(),
	}
	if s.deps.Status != nil {
		status.PipelineState = s.deps.Status.State().String()
		status.BreakerState = s.deps.Status.BreakerState()
	}
	if status.BreakerState == "open" {
		status.Status = "degraded"
	}
	respondSuccess(w, http.StatusOK, status, time.Time{})
}

// runs lists the most recent pipeline runs, newest first.
func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.deps.Journal == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run journal is disabled", nil)
		return
	}

	limit := journal.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	runs, err := s.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to read run journal", err)
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	respondSuccess(w, http.StatusOK, runs, start)
}

// tables returns row counts for every star-schema table.
func (s *Server) tables(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if s.deps.Tables == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Store is not configured", nil)
		return
	}
	counts, err := s.deps.Tables.TableCounts(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeDatabaseError, "A database error occurred", err)
		return
	}
	respondSuccess(w, http.StatusOK, counts, start)
}

// ingest queues a file that already sits in the ingest directory. Relative
// paths are resolved against that directory.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Ingestion queue is not running", nil)
		return
	}

	var req models.IngestRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON request body", nil)
		return
	}
	if err := validation.Struct(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error(), nil)
		return
	}

	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.ingestDir, path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "File not found in ingest directory", nil)
		return
	}

	err = s.deps.Queue.Enqueue(r.Context(), path)
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrOutsideIngestDir):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Path must be directly inside the ingest directory", nil)
		return
	case errors.Is(err, dispatch.ErrNotRunning), errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Ingestion queue is not running", err)
		return
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to queue file", err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("path", path).Msg("File queued through ops API")
	respondSuccess(w, http.StatusAccepted, models.IngestResponse{
		Path:          path,
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
	}, time.Time{})
}

// respondSuccess writes a success envelope. A non-zero start fills in the
// query time.
func respondSuccess(w http.ResponseWriter, status int, data any, start time.Time) {
	meta := models.Metadata{Timestamp: time.Now().UTC()}
	if !start.IsZero() {
		meta.QueryTimeMS = time.Since(start).Milliseconds()
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: meta,
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("code", code).Str("path", r.URL.Path).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}
