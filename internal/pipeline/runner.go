// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package pipeline runs one source file through extract, validate,
// transform and load, then moves the file to the loaded or invalid
// directory.
//
// Stage failures never escape RunPipeline: they are reported on the
// returned RunResult, and the file is routed to the invalid directory.
// Records rejected by validation are written to the quarantine directory
// and the rest of the file proceeds. Quarantined records are the
// canonicalized form that was validated: dotted feed prefixes such as
// "track_metadata." are stripped, all other fields and values are kept.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/database"
	"github.com/tomtom215/listenstar/internal/extract"
	"github.com/tomtom215/listenstar/internal/journal"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/metrics"
	"github.com/tomtom215/listenstar/internal/models"
	"github.com/tomtom215/listenstar/internal/schema"
	"github.com/tomtom215/listenstar/internal/transform"
)

// Store is the part of *database.DB the runner uses.
type Store interface {
	CreateSchema(ctx context.Context) error
	Load(ctx context.Context, listens []models.Listen) (database.LoadStats, error)
	TableCounts(ctx context.Context) ([]models.TableCount, error)
	Close() error
}

// StoreOpener opens a store connection for one run.
type StoreOpener func(cfg *config.DatabaseConfig) (Store, error)

// OpenDatabase is the default StoreOpener.
func OpenDatabase(cfg *config.DatabaseConfig) (Store, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Runner executes pipeline runs. Runs are serialized: a second RunPipeline
// call waits for the first to finish.
type Runner struct {
	watch   config.WatchConfig
	dbCfg   config.DatabaseConfig
	schema  *schema.Schema
	journal journal.Journal
	breaker *storeBreaker
	open    StoreOpener
	now     func() time.Time

	runMu sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournal records every run in j.
func WithJournal(j journal.Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithStoreOpener replaces how store connections are opened.
func WithStoreOpener(open StoreOpener) Option {
	return func(r *Runner) { r.open = open }
}

// WithSchema replaces the listen schema used for validation.
func WithSchema(s *schema.Schema) Option {
	return func(r *Runner) { r.schema = s }
}

// WithClock replaces time.Now, for deterministic quarantine file names.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		watch:   cfg.Watch,
		dbCfg:   cfg.Database,
		schema:  schema.ListenSchema(),
		breaker: newStoreBreaker(cfg.Breaker),
		open:    OpenDatabase,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state of the runner.
func (r *Runner) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// BreakerState reports the store circuit breaker state.
func (r *Runner) BreakerState() string {
	return r.breaker.State()
}

// EnsureDirectories creates the ingest, loaded, invalid and quarantine directories.
func (r *Runner) EnsureDirectories() error {
	for _, dir := range r.watch.Directories() {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateDatabase opens the store, creates the schema if needed and closes
// the connection again. It is safe to call on every start.
func (r *Runner) CreateDatabase(ctx context.Context) error {
	store, err := r.open(&r.dbCfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(ctx, store)

	if err := store.CreateSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// TableCounts returns row counts per store table. It waits for any run in
// progress, so it never holds a second connection to the store.
func (r *Runner) TableCounts(ctx context.Context) ([]models.TableCount, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	store, err := r.open(&r.dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer closeStore(ctx, store)

	return store.TableCounts(ctx)
}

// RunPipeline processes the file at path and moves it to the loaded
// directory on success or to the invalid directory when a stage fails.
func (r *Runner) RunPipeline(ctx context.Context, path string) *RunResult {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	res := &RunResult{
		RunID:     logging.GenerateRunID(),
		Source:    path,
		StartedAt: r.now(),
	}
	ctx = logging.ContextWithRunID(ctx, res.RunID)
	log := logging.Ctx(ctx)

	log.Info().Str("source", path).Msg("Pipeline run started")

	res.Err = r.process(ctx, log, res)

	dstDir, outcome := r.watch.LoadedDir, models.OutcomeLoaded
	if res.Err != nil {
		r.setState(StateFailed)
		dstDir, outcome = r.watch.InvalidDir, models.OutcomeInvalid
		log.Warn().Err(res.Err).Str("source", path).Msg("Pipeline run failed, routing file to invalid")
	}

	r.relocate(log, res, dstDir, outcome)
	r.finish(ctx, log, res)
	return res
}

// RouteInvalid moves path to the invalid directory without processing it.
func (r *Runner) RouteInvalid(ctx context.Context, path string) *RunResult {
	return r.RouteInvalidCause(ctx, path, ErrUnsupportedFile)
}

// RouteInvalidCause is RouteInvalid with the reason recorded on the result.
// The dispatcher uses it after recovering from a failed delivery.
func (r *Runner) RouteInvalidCause(ctx context.Context, path string, cause error) *RunResult {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	res := &RunResult{
		RunID:     logging.GenerateRunID(),
		Source:    path,
		StartedAt: r.now(),
		Err:       cause,
	}
	ctx = logging.ContextWithRunID(ctx, res.RunID)
	log := logging.Ctx(ctx)

	log.Warn().Err(cause).Str("source", path).Msg("Routing file to invalid without processing")

	r.relocate(log, res, r.watch.InvalidDir, models.OutcomeInvalid)
	r.finish(ctx, log, res)
	return res
}

// process runs the four data stages. The first failure stops the run.
func (r *Runner) process(ctx context.Context, log *zerolog.Logger, res *RunResult) error {
	var records []models.Record
	err := r.stage(log, StageExtract, func() error {
		var err error
		records, err = extract.File(res.Source)
		res.Extracted = len(records)
		return err
	})
	if err != nil {
		return err
	}

	var valid []models.Record
	err = r.stage(log, StageValidate, func() error {
		var invalid []models.Record
		valid, invalid = r.schema.Split(transform.Canonicalize(records))
		res.Valid, res.Invalid = len(valid), len(invalid)

		if len(invalid) > 0 {
			path, err := writeQuarantine(r.watch.QuarantineDir, res.StartedAt, res.RunID, invalid)
			if err != nil {
				return err
			}
			res.Quarantine = path
			log.Warn().
				Int("invalid", len(invalid)).
				Str("quarantine", path).
				Msg("Invalid records quarantined")
		}
		if len(valid) == 0 {
			return ErrNoValidRecords
		}
		return nil
	})
	if err != nil {
		return err
	}

	var listens []models.Listen
	err = r.stage(log, StageTransform, func() error {
		var err error
		listens, err = transform.Transform(valid)
		return err
	})
	if err != nil {
		return err
	}

	return r.stage(log, StageLoad, func() error {
		stats, err := r.breaker.Execute(func() (database.LoadStats, error) {
			return r.load(ctx, listens)
		})
		res.Load = stats
		return err
	})
}

// load opens a store connection for this run, loads listens and closes it.
func (r *Runner) load(ctx context.Context, listens []models.Listen) (database.LoadStats, error) {
	store, err := r.open(&r.dbCfg)
	if err != nil {
		return database.LoadStats{}, fmt.Errorf("open store: %w", err)
	}
	defer closeStore(ctx, store)

	return store.Load(ctx, listens)
}

// stage runs fn as one named stage with state tracking, logs and timing.
func (r *Runner) stage(log *zerolog.Logger, name string, fn func() error) error {
	r.setState(stageState[name])
	log.Info().Str("stage", name).Msg("Stage started")

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	metrics.RecordStage(name, elapsed)

	if err != nil {
		log.Error().Err(err).Str("stage", name).Dur("duration", elapsed).Msg("Stage failed")
		return &StageError{Stage: name, Err: err}
	}
	log.Info().Str("stage", name).Dur("duration", elapsed).Msg("Stage finished")
	return nil
}

// relocate moves the source to dstDir and records the outcome on res.
func (r *Runner) relocate(log *zerolog.Logger, res *RunResult, dstDir, outcome string) {
	r.setState(StateRelocating)
	res.Outcome = outcome

	dst, err := Relocate(res.Source, dstDir)
	res.Destination = dst

	var relErr *RelocationError
	switch {
	case err == nil:
		metrics.RecordRelocation(outcome, "success")
		log.Info().
			Str("source", res.Source).
			Str("destination", dst).
			Str("outcome", outcome).
			Msg("File relocated")
	case errors.As(err, &relErr) && relErr.Copied:
		res.Relocation = relErr
		metrics.RecordRelocation(outcome, "partial")
		log.Warn().
			Err(relErr.Err).
			Str("source", res.Source).
			Str("destination", dst).
			Msg("File copied but source could not be removed")
	default:
		if !errors.As(err, &relErr) {
			relErr = &RelocationError{Phase: PhaseCopy, Source: res.Source, Err: err}
		}
		res.Relocation = relErr
		res.Outcome = models.OutcomeFailed
		metrics.RecordRelocation(outcome, "failure")
		log.Error().
			Err(err).
			Str("source", res.Source).
			Str("target_dir", dstDir).
			Msg("File relocation failed, source left in place")
	}
}

// finish records metrics and the journal entry and returns the runner to idle.
func (r *Runner) finish(ctx context.Context, log *zerolog.Logger, res *RunResult) {
	res.FinishedAt = r.now()

	metrics.RecordRun(res.Outcome, res.Extracted, res.Valid, res.Invalid)
	for _, t := range res.Load.Tables {
		metrics.RecordRowsInserted(t.Table, t.Inserted)
	}

	if r.journal != nil {
		if err := r.journal.Record(ctx, res.ToSummary()); err != nil {
			log.Warn().Err(err).Msg("Failed to record run in journal")
		}
	}

	log.Info().
		Str("outcome", res.Outcome).
		Int("extracted", res.Extracted).
		Int("valid", res.Valid).
		Int("invalid", res.Invalid).
		Int64("inserted", res.Load.Inserted()).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("Pipeline run finished")

	r.setState(StateIdle)
}

func closeStore(ctx context.Context, store Store) {
	if err := store.Close(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to close store")
	}
}
