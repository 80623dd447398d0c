// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/database"
	"github.com/tomtom215/listenstar/internal/models"
)

const (
	artistA = "11111111-1111-1111-1111-111111111111"

	validLine   = `{"listened_at": 1550000000, "user_name": "u1", "track_metadata": {"artist_name": "A", "track_name": "Song (Live)", "additional_info": {"artist_msid": "11111111-1111-1111-1111-111111111111"}}}`
	invalidLine = `{"listened_at": 1550000001, "user_name": "u1", "track_metadata": {"artist_name": "A", "track_name": "Other", "additional_info": {"artist_msid": "not-a-uuid"}}}`
)

// fixedTime is the clock used by test runners.
var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)

// testConfig points every directory and the store at a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Watch.IngestDir = filepath.Join(root, "data")
	cfg.Watch.LoadedDir = filepath.Join(root, "processed", "loaded")
	cfg.Watch.InvalidDir = filepath.Join(root, "processed", "invalid")
	cfg.Watch.QuarantineDir = filepath.Join(root, "processed", "invalid_data")
	cfg.Database.Driver = database.DriverSQLite
	cfg.Database.Path = filepath.Join(root, "db", "listens.db")
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, opts ...Option) *Runner {
	t.Helper()

	opts = append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)
	r := NewRunner(cfg, opts...)
	if err := r.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error = %v", err)
	}
	return r
}

// writeIngestFile drops a file into the ingest directory.
func writeIngestFile(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()

	path := filepath.Join(cfg.Watch.IngestDir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be gone, stat error = %v", path, err)
	}
}

// fakeStore is a hand-written Store for failure scenarios.
type fakeStore struct {
	mu        sync.Mutex
	loadErr   error
	schemaErr error
	loads     int
	closes    int
	listens   []models.Listen
}

func (s *fakeStore) CreateSchema(context.Context) error {
	return s.schemaErr
}

func (s *fakeStore) Load(_ context.Context, listens []models.Listen) (database.LoadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return database.LoadStats{}, s.loadErr
	}
	s.listens = append(s.listens, listens...)
	return database.LoadStats{Tables: []database.TableStats{{Table: database.TableListen, Attempted: len(listens), Inserted: int64(len(listens))}}}, nil
}

func (s *fakeStore) TableCounts(context.Context) ([]models.TableCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []models.TableCount{{Table: database.TableListen, Rows: int64(len(s.listens))}}, nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// opener returns a StoreOpener handing out s and counting calls.
func (s *fakeStore) opener(calls *int) StoreOpener {
	return func(*config.DatabaseConfig) (Store, error) {
		*calls++
		return s, nil
	}
}
