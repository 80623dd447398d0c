// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/models"
	"github.com/tomtom215/listenstar/internal/transform"
)

// testDBSemaphore serializes DuckDB tests; concurrent CGO databases in one
// test binary exhaust memory on small runners.
var testDBSemaphore = make(chan struct{}, 1)

var drivers = []string{DriverDuckDB, DriverSQLite}

func setupTestDB(t *testing.T, driver string) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	cfg := &config.DatabaseConfig{
		Driver:    driver,
		Path:      filepath.Join(t.TempDir(), "db", "listens."+driver),
		MaxMemory: "512MB",
		Threads:   1,
	}
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", driver, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	if err := db.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	return db
}

func testListens(t *testing.T) []models.Listen {
	t.Helper()

	records := []models.Record{
		{
			"artist_msid": "11111111-1111-1111-1111-111111111111",
			"artist_name": "A",
			"track_name":  "Song (Live)",
			"user_name":   "u1",
			"listened_at": "1550000000",
		},
		{
			"artist_msid":  "11111111-1111-1111-1111-111111111111",
			"artist_name":  "A",
			"track_name":   "Other",
			"user_name":    "u1",
			"listened_at":  "1550000100",
			"release_msid": "22222222-2222-2222-2222-222222222222",
			"release_name": "Album",
			"date":         "2004",
			"tracknumber":  "3",
			"duration_ms":  "215000",
			"dedup_tag":    "7",
		},
		{
			"artist_msid": "33333333-3333-3333-3333-333333333333",
			"artist_name": "B",
			"track_name":  "Song",
			"user_name":   "u2",
			"listened_at": "1550000000",
		},
	}

	listens, err := transform.Transform(records)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	return listens
}

func countsByTable(t *testing.T, db *DB) map[string]int64 {
	t.Helper()

	counts, err := db.TableCounts(context.Background())
	if err != nil {
		t.Fatalf("TableCounts() error = %v", err)
	}
	m := make(map[string]int64, len(counts))
	for _, c := range counts {
		m[c.Table] = c.Rows
	}
	return m
}

func TestCreateSchema_Idempotent(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)

			if err := db.CreateSchema(context.Background()); err != nil {
				t.Fatalf("second CreateSchema() error = %v", err)
			}
			for table, n := range countsByTable(t, db) {
				if n != 0 {
					t.Errorf("%s rows = %d, want 0", table, n)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	want := map[string]int64{
		TableArtist:  2,
		TableTrack:   3, // "Song" by A and by B are distinct tracks
		TableRelease: 2,
		TableTime:    2,
		TableListen:  3,
	}

	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)
			listens := testListens(t)

			stats, err := db.Load(context.Background(), listens)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(stats.Tables) != len(Tables) {
				t.Fatalf("len(stats.Tables) = %d, want %d", len(stats.Tables), len(Tables))
			}
			for i, ts := range stats.Tables {
				if ts.Table != Tables[i] {
					t.Errorf("stage %d = %s, want %s", i, ts.Table, Tables[i])
				}
				if ts.Inserted != want[ts.Table] {
					t.Errorf("%s inserted = %d, want %d", ts.Table, ts.Inserted, want[ts.Table])
				}
			}

			got := countsByTable(t, db)
			for table, n := range want {
				if got[table] != n {
					t.Errorf("%s rows = %d, want %d", table, got[table], n)
				}
			}
		})
	}
}

func TestLoad_Idempotent(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)
			listens := testListens(t)

			if _, err := db.Load(context.Background(), listens); err != nil {
				t.Fatalf("first Load() error = %v", err)
			}
			before := countsByTable(t, db)

			stats, err := db.Load(context.Background(), listens)
			if err != nil {
				t.Fatalf("second Load() error = %v", err)
			}
			if stats.Inserted() != 0 {
				t.Errorf("second Load() inserted %d rows, want 0", stats.Inserted())
			}
			if got := stats.Table(TableListen).Attempted; got != 3 {
				t.Errorf("fact attempted = %d, want 3", got)
			}

			after := countsByTable(t, db)
			for table, n := range before {
				if after[table] != n {
					t.Errorf("%s rows changed from %d to %d", table, n, after[table])
				}
			}
		})
	}
}

func TestLoad_NullableColumns(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)
			listens := testListens(t)

			if _, err := db.Load(context.Background(), listens); err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			var name string
			var year *int64
			row := db.Conn().QueryRowContext(context.Background(),
				`SELECT "release_name", "release_date" FROM "dim_release" WHERE "release_msid" = ?`,
				models.UnknownReleaseMSID)
			if err := row.Scan(&name, &year); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if name != models.UnknownReleaseName {
				t.Errorf("release_name = %q, want %q", name, models.UnknownReleaseName)
			}
			if year != nil {
				t.Errorf("release_date = %d, want NULL", *year)
			}

			var duration *int64
			row = db.Conn().QueryRowContext(context.Background(),
				`SELECT "track_duration_ms" FROM "dim_track" WHERE "track_msid" = ?`, listens[1].TrackMSID)
			if err := row.Scan(&duration); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if duration == nil || *duration != 215000 {
				t.Errorf("track_duration_ms = %v, want 215000", duration)
			}

			unnamed, err := transform.Transform([]models.Record{{
				"artist_msid":  "11111111-1111-1111-1111-111111111111",
				"artist_name":  "A",
				"track_name":   "Song",
				"user_name":    "u3",
				"listened_at":  "1550000200",
				"release_msid": "44444444-4444-4444-4444-444444444444",
			}})
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			if _, err := db.Load(context.Background(), unnamed); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			var releaseName *string
			row = db.Conn().QueryRowContext(context.Background(),
				`SELECT "release_name" FROM "dim_release" WHERE "release_msid" = ?`, unnamed[0].ReleaseMSID)
			if err := row.Scan(&releaseName); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if releaseName != nil {
				t.Errorf("release_name = %q, want NULL", *releaseName)
			}
		})
	}
}

func TestLoad_StageFailure(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)

			if _, err := db.Conn().ExecContext(context.Background(), `DROP TABLE "fact_listen"`); err != nil {
				t.Fatalf("DROP TABLE error = %v", err)
			}

			stats, err := db.Load(context.Background(), testListens(t))
			if err == nil {
				t.Fatal("Load() error = nil, want LoadError")
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("Load() error = %T, want *LoadError", err)
			}
			if loadErr.Table != TableListen {
				t.Errorf("LoadError.Table = %s, want %s", loadErr.Table, TableListen)
			}
			if len(stats.Tables) != 4 {
				t.Errorf("completed stages = %d, want 4", len(stats.Tables))
			}

			var artists int64
			if err := db.Conn().QueryRowContext(context.Background(),
				`SELECT COUNT(*) FROM "dim_artist"`).Scan(&artists); err != nil {
				t.Fatalf("count error = %v", err)
			}
			if artists != 2 {
				t.Errorf("dim_artist rows = %d, want 2 (earlier stages stay committed)", artists)
			}
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	db := setupTestDB(t, DriverSQLite)

	stats, err := db.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("Load(nil) error = %v", err)
	}
	if len(stats.Tables) != 0 {
		t.Errorf("Load(nil) stats = %+v, want empty", stats)
	}
}

func TestInsertSQL(t *testing.T) {
	t.Parallel()

	st := newStage(TableArtist, "artist_msid", "artist_name")
	got := st.insertSQL()
	want := `INSERT INTO "dim_artist" ("artist_msid", "artist_name") VALUES (?, ?) ON CONFLICT ("artist_msid") DO NOTHING`
	if got != want {
		t.Errorf("insertSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildStages_Dedup(t *testing.T) {
	t.Parallel()

	listens := testListens(t)
	listens = append(listens, listens...)

	stages := buildStages(listens)
	wantRows := []int{2, 3, 2, 2, 3}
	for i, st := range stages {
		if st.table != Tables[i] {
			t.Errorf("stage %d = %s, want %s", i, st.table, Tables[i])
		}
		if len(st.rows) != wantRows[i] {
			t.Errorf("%s rows = %d, want %d", st.table, len(st.rows), wantRows[i])
		}
	}
}

func TestConnectionString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        config.DatabaseConfig
		wantDriver string
		wantPrefix string
		wantErr    bool
	}{
		{"duckdb", config.DatabaseConfig{Driver: "duckdb", Path: "a.duckdb", Threads: 2, MaxMemory: "1GB"}, "duckdb", "a.duckdb?access_mode=read_write&threads=2&max_memory=1GB", false},
		{"default driver", config.DatabaseConfig{Path: "a.duckdb", Threads: 1}, "duckdb", "a.duckdb?", false},
		{"sqlite", config.DatabaseConfig{Driver: "sqlite", Path: "a.db"}, "sqlite", "file:a.db?_pragma=foreign_keys(1)", false},
		{"unknown", config.DatabaseConfig{Driver: "postgres", Path: "x"}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			driver, dsn, err := connectionString(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("connectionString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if driver != tt.wantDriver {
				t.Errorf("driver = %q, want %q", driver, tt.wantDriver)
			}
			if !strings.HasPrefix(dsn, tt.wantPrefix) {
				t.Errorf("dsn = %q, want prefix %q", dsn, tt.wantPrefix)
			}
		})
	}
}

func TestOpen_NilConfig(t *testing.T) {
	t.Parallel()

	if _, err := Open(nil); err == nil {
		t.Error("Open(nil) error = nil, want error")
	}
}
