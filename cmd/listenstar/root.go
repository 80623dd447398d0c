// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/logging"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "listenstar",
		Short:         "Listening history ingestion into a star schema",
		Long:          "Watches a directory for listening-history exports and loads them into a DuckDB or SQLite star schema.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCmd(a),
		newIngestCmd(a),
		newInitDBCmd(a),
		newRunsCmd(a),
	)
	return root
}

// setup loads configuration and initializes logging.
func (a *app) setup() error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	a.cfg = cfg
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
