// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/models"
)

// TableStats counts one stage of a load.
type TableStats struct {
	Table     string `json:"table"`
	Attempted int    `json:"attempted"` // distinct keys offered
	Inserted  int64  `json:"inserted"`  // rows new to the store
}

// LoadStats holds per-table counts in load order.
type LoadStats struct {
	Tables []TableStats `json:"tables"`
}

// Inserted returns the number of new rows across all tables.
func (s LoadStats) Inserted() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.Inserted
	}
	return n
}

// Table returns the stats of one table, or zero stats if it was not loaded.
func (s LoadStats) Table(name string) TableStats {
	for _, t := range s.Tables {
		if t.Table == name {
			return t
		}
	}
	return TableStats{Table: name}
}

// stage is the work for one table: distinct rows keyed on the first column.
type stage struct {
	table   string
	columns []string
	rows    [][]any
	seen    map[string]struct{}
}

func newStage(table string, columns ...string) *stage {
	return &stage{table: table, columns: columns, seen: make(map[string]struct{})}
}

// add keeps the first row seen for each key.
func (s *stage) add(key string, values ...any) {
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.rows = append(s.rows, append([]any{key}, values...))
}

// addInt is add for integer-keyed tables.
func (s *stage) addInt(key int64, values ...any) {
	k := fmt.Sprint(key)
	if _, dup := s.seen[k]; dup {
		return
	}
	s.seen[k] = struct{}{}
	s.rows = append(s.rows, append([]any{key}, values...))
}

// insertSQL builds the insert-or-ignore statement. The first column is the key.
func (s *stage) insertSQL() string {
	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = `"` + c + `"`
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.columns)), ", ")
	return fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
		s.table, strings.Join(quoted, ", "), placeholders, quoted[0])
}

// buildStages splits listens across the five tables in foreign-key order.
func buildStages(listens []models.Listen) []*stage {
	artists := newStage(TableArtist, "artist_msid", "artist_name")
	tracks := newStage(TableTrack, "track_msid", "track_name", "track_number", "disc_number", "track_duration_ms")
	releases := newStage(TableRelease, "release_msid", "release_name", "total_discs", "total_tracks", "release_date")
	times := newStage(TableTime, "timestamp_unix_id", "timestamp_utc", "date", "time", "weekday",
		"day_of_week", "day", "week", "month", "year")
	facts := newStage(TableListen, "listened_id", "user_name", "track_msid", "artist_msid",
		"release_msid", "timestamp_unix_id", "dedup_tag")

	for i := range listens {
		l := &listens[i]
		artists.add(l.ArtistMSID, l.ArtistName)
		tracks.add(l.TrackMSID, l.TrackName, nullInt(l.TrackNumber), nullInt(l.DiscNumber), nullInt(l.DurationMS))
		releases.add(l.ReleaseMSID, nullString(l.ReleaseName), nullInt(l.TotalDiscs), nullInt(l.TotalTracks), nullInt(l.ReleaseYear))

		t := l.Time
		times.addInt(t.TimestampUnix, t.TimestampUTC, t.Date, t.Time, t.Weekday,
			t.DayOfWeek, t.Day, t.Week, t.Month, t.Year)

		facts.add(l.ListenedID, l.UserName, l.TrackMSID, l.ArtistMSID, l.ReleaseMSID,
			l.Time.TimestampUnix, nullString(l.DedupTag))
	}

	return []*stage{artists, tracks, releases, times, facts}
}

// Load writes listens into the star schema: artist, track, release, time,
// then fact. Each table is loaded in its own transaction with a prepared
// insert-or-ignore statement, so loading the same listens twice changes
// nothing. A failing stage is rolled back and reported as *LoadError;
// stages before it stay committed.
func (db *DB) Load(ctx context.Context, listens []models.Listen) (LoadStats, error) {
	var stats LoadStats
	if len(listens) == 0 {
		return stats, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, st := range buildStages(listens) {
		inserted, err := db.insertStage(ctx, st)
		if err != nil {
			return stats, &LoadError{Table: st.table, Err: err}
		}
		stats.Tables = append(stats.Tables, TableStats{
			Table:     st.table,
			Attempted: len(st.rows),
			Inserted:  inserted,
		})

		logging.Ctx(ctx).Debug().
			Str("table", st.table).
			Int("attempted", len(st.rows)).
			Int64("inserted", inserted).
			Msg("Table loaded")
	}

	return stats, nil
}

// insertStage runs one stage inside a transaction.
func (db *DB) insertStage(ctx context.Context, st *stage) (inserted int64, err error) {
	if len(st.rows) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Ensure transaction is finalized
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Str("table", st.table).
					Msg("Transaction rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, st.insertSQL())
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, row := range st.rows {
		result, execErr := stmt.ExecContext(ctx, row...)
		if execErr != nil {
			err = fmt.Errorf("failed to insert key %v: %w", row[0], execErr)
			return 0, err
		}
		if n, raErr := result.RowsAffected(); raErr == nil {
			inserted += n
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// TableCounts returns the row count of every star-schema table.
func (db *DB) TableCounts(ctx context.Context) ([]models.TableCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	counts := make([]models.TableCount, 0, len(Tables))
	for _, table := range Tables {
		var n int64
		// Table names come from the fixed Tables list, not from input.
		query := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table) //nolint:gosec
		if err := db.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts = append(counts, models.TableCount{Table: table, Rows: n})
	}
	return counts, nil
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
