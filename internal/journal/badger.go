// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package journal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/models"
)

// runKeyPrefix prefixes every run entry. The start time is zero padded so
// byte order equals time order.
const runKeyPrefix = "run:"

// BadgerJournal implements Journal on BadgerDB.
type BadgerJournal struct {
	db     *badger.DB
	ownsDB bool
}

// OpenBadger opens (or creates) a journal database at path.
func OpenBadger(path string) (*BadgerJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = badgerLogger{logger: logging.WithComponent("journal")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &BadgerJournal{db: db, ownsDB: true}, nil
}

// NewBadgerJournal wraps an already opened BadgerDB. Close leaves db open.
func NewBadgerJournal(db *badger.DB) *BadgerJournal {
	return &BadgerJournal{db: db}
}

func runKey(run *models.RunSummary) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runKeyPrefix, run.StartedAt.UnixNano(), run.RunID))
}

// Record persists run.
func (j *BadgerJournal) Record(_ context.Context, run models.RunSummary) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(&run), data)
	})
}

// Recent returns the newest runs first.
func (j *BadgerJournal) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	limit = clampLimit(limit)
	runs := make([]models.RunSummary, 0, limit)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key <= seek key.
		seek := append([]byte(runKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix) && len(runs) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var run models.RunSummary
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return runs, nil
}

// Close closes the database if the journal opened it.
func (j *BadgerJournal) Close() error {
	if !j.ownsDB {
		return nil
	}
	return j.db.Close()
}

// badgerLogger routes Badger's internal logging into zerolog. Info and
// debug chatter is demoted one level.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
