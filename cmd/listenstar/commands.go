// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/listenstar/internal/journal"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/models"
)

// errRunsFailed makes ingest exit non-zero when any file was not loaded.
var errRunsFailed = errors.New("one or more files were not loaded")

func newIngestCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Run the pipeline once for each file",
		Long: "Runs extract, validate, transform and load for each file in order, " +
			"then moves it to the loaded or invalid directory. Exits non-zero if any file was not loaded.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runs, err := openJournal(a)
			if err != nil {
				return err
			}
			defer closeJournal(runs)

			runner := newRunner(a, runs)
			if err := runner.EnsureDirectories(); err != nil {
				return err
			}
			if err := runner.CreateDatabase(ctx); err != nil {
				return err
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, path := range args {
				if ctx.Err() != nil {
					break
				}
				runCtx := logging.ContextWithNewCorrelationID(ctx)
				summary := runner.RunPipeline(runCtx, path).ToSummary()
				if summary.Outcome != models.OutcomeLoaded {
					failed++
				}
				if err := printSummary(out, summary, asJSON); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errRunsFailed, failed, len(args))
			}
			return ctx.Err()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON summary per file")
	return cmd
}

func newInitDBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the directories and store schema, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner := newRunner(a, nil)
			if err := runner.EnsureDirectories(); err != nil {
				return err
			}
			if err := runner.CreateDatabase(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema ready: %s (%s)\n", a.cfg.Database.Path, a.cfg.Database.Driver)
			return err
		},
	}
}

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Print recent pipeline runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := openJournal(a)
			if err != nil {
				return err
			}
			if runs == nil {
				return errors.New("run journal is disabled (journal.enabled=false)")
			}
			defer closeJournal(runs)

			recent, err := runs.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read run journal: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				for _, s := range recent {
					if err := printSummary(out, s, true); err != nil {
						return err
					}
				}
				return nil
			}
			return printTable(out, recent)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultLimit, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON lines instead of a table")
	return cmd
}

func printSummary(w io.Writer, s models.RunSummary, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	line := fmt.Sprintf("%s  %-7s  %s", s.RunID, s.Outcome, s.Source)
	if s.Destination != "" {
		line += " -> " + s.Destination
	}
	line += fmt.Sprintf("  (valid %d, invalid %d, inserted %d)", s.Valid, s.Invalid, s.Inserted)
	if s.FailedStage != "" {
		line += fmt.Sprintf("  failed at %s: %s", s.FailedStage, s.Error)
	}
	if s.Warning != "" {
		line += "  warning: " + s.Warning
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func printTable(w io.Writer, runs []models.RunSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOUTCOME\tSOURCE\tVALID\tINVALID\tINSERTED\tDURATION\tERROR")
	for _, s := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.StartedAt.Local().Format(time.DateTime),
			s.Outcome,
			s.Source,
			s.Valid,
			s.Invalid,
			s.Inserted,
			s.Duration().Round(time.Millisecond),
			s.Error,
		)
	}
	return tw.Flush()
}
