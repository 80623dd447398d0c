// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/listenstar/internal/dispatch"
	"github.com/tomtom215/listenstar/internal/journal"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/pipeline"
	"github.com/tomtom215/listenstar/internal/server"
	"github.com/tomtom215/listenstar/internal/supervisor"
	"github.com/tomtom215/listenstar/internal/supervisor/services"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the ingest directory and serve the ops API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve runs the watcher, dispatcher and ops server until a signal arrives.
// Bootstrap failures (directories, schema, journal) are returned before any
// service starts.
func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	ctx, stop := signalContext(parent)
	defer stop()

	logging.Info().
		Str("version", version).
		Str("ingest_dir", cfg.Watch.IngestDir).
		Str("db_driver", cfg.Database.Driver).
		Str("db_path", cfg.Database.Path).
		Msg("Starting listenstar")

	runs, err := openJournal(a)
	if err != nil {
		return err
	}
	defer closeJournal(runs)

	runner := newRunner(a, runs)
	dispatcher, err := dispatch.New(ctx, cfg, runner)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to bootstrap pipeline")
		return err
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddIngestService(dispatcher)
	tree.AddIngestService(dispatch.NewWatcher(cfg, dispatcher))

	if cfg.Server.Enabled {
		deps := server.Deps{
			Tables:  runner,
			Queue:   dispatcher,
			Status:  runner,
			Version: version,
		}
		if runs != nil {
			deps.Journal = runs
		}
		srv := server.New(cfg, deps).HTTPServer()
		tree.AddAPIService(services.NewHTTPServerService(srv, srv.Addr, cfg.Server.ShutdownTimeout))
	} else {
		logging.Info().Msg("Ops API disabled")
	}

	err = tree.Serve(ctx)

	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		return err
	}

	logging.Info().Msg("Listenstar stopped")
	return nil
}

// openJournal opens the configured run journal; nil when disabled.
func openJournal(a *app) (journal.Journal, error) {
	runs, err := journal.Open(a.cfg.Journal)
	if err != nil {
		logging.Error().Err(err).Str("path", a.cfg.Journal.Path).Msg("Failed to open run journal")
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	return runs, nil
}

func closeJournal(runs journal.Journal) {
	if runs == nil {
		return
	}
	if err := runs.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close run journal")
	}
}

func newRunner(a *app, runs journal.Journal) *pipeline.Runner {
	var opts []pipeline.Option
	if runs != nil {
		opts = append(opts, pipeline.WithJournal(runs))
	}
	return pipeline.NewRunner(a.cfg, opts...)
}
