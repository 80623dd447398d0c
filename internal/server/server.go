// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package server is the ops HTTP API: health, metrics, the run journal,
// store row counts and manual ingestion.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/dispatch"
	"github.com/tomtom215/listenstar/internal/middleware"
	"github.com/tomtom215/listenstar/internal/models"
	"github.com/tomtom215/listenstar/internal/pipeline"
)

// maxBodyBytes caps POST bodies; an ingest request is a single path.
const maxBodyBytes = 64 << 10

// RunLister returns recent journal entries. journal.Journal implements it.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// TableCounter reports row counts per store table. *pipeline.Runner
// implements it.
type TableCounter interface {
	TableCounts(ctx context.Context) ([]models.TableCount, error)
}

// StatusReporter exposes pipeline state. *pipeline.Runner implements it.
type StatusReporter interface {
	State() pipeline.State
	BreakerState() string
}

// Deps are the components the handlers read from. Journal may be nil when
// the run journal is disabled.
type Deps struct {
	Journal RunLister
	Tables  TableCounter
	Queue   dispatch.Enqueuer
	Status  StatusReporter
	Version string
}

// Server holds the ops API handlers.
type Server struct {
	cfg       config.ServerConfig
	ingestDir string
	deps      Deps
	started   time.Time
}

// New creates the ops API for cfg.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:       cfg.Server,
		ingestDir: cfg.Watch.IngestDir,
		deps:      deps,
		started:   time.Now(),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.HeaderRequestID, middleware.HeaderCorrelationID},
			ExposedHeaders: []string{middleware.HeaderRequestID, middleware.HeaderCorrelationID},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
		}
		r.Get("/runs", s.runs)
		r.Get("/tables", s.tables)
		r.Post("/ingest", s.ingest)
	})

	return r
}

// HTTPServer wraps Handler in an *http.Server listening on the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
}
