// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/listenstar/internal/logging"
)

// Star-schema table names, in load order.
const (
	TableArtist  = "dim_artist"
	TableTrack   = "dim_track"
	TableRelease = "dim_release"
	TableTime    = "dim_time"
	TableListen  = "fact_listen"
)

// Tables lists every table in foreign-key order.
var Tables = []string{TableArtist, TableTrack, TableRelease, TableTime, TableListen}

// Identifiers are quoted: "date", "time" and "year" are keywords on both engines.
func schemaQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS "dim_artist" (
			"artist_msid" VARCHAR(36) PRIMARY KEY,
			"artist_name" VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS "dim_track" (
			"track_msid" VARCHAR(32) PRIMARY KEY,
			"track_name" VARCHAR NOT NULL,
			"track_number" INTEGER,
			"disc_number" INTEGER,
			"track_duration_ms" BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS "dim_release" (
			"release_msid" VARCHAR(36) PRIMARY KEY,
			"release_name" VARCHAR,
			"total_discs" INTEGER,
			"total_tracks" INTEGER,
			"release_date" INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS "dim_time" (
			"timestamp_unix_id" BIGINT PRIMARY KEY,
			"timestamp_utc" VARCHAR NOT NULL,
			"date" VARCHAR(10) NOT NULL,
			"time" VARCHAR(8) NOT NULL,
			"weekday" VARCHAR(9) NOT NULL,
			"day_of_week" INTEGER NOT NULL,
			"day" INTEGER NOT NULL,
			"week" INTEGER NOT NULL,
			"month" INTEGER NOT NULL,
			"year" INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS "fact_listen" (
			"listened_id" VARCHAR(32) PRIMARY KEY,
			"user_name" VARCHAR NOT NULL,
			"track_msid" VARCHAR(32) NOT NULL REFERENCES "dim_track" ("track_msid"),
			"artist_msid" VARCHAR(36) NOT NULL REFERENCES "dim_artist" ("artist_msid"),
			"release_msid" VARCHAR(36) NOT NULL REFERENCES "dim_release" ("release_msid"),
			"timestamp_unix_id" BIGINT NOT NULL REFERENCES "dim_time" ("timestamp_unix_id"),
			"dedup_tag" VARCHAR
		)`,
	}
}

// CreateSchema creates every table that does not exist yet. Running it
// against an initialized store is a no-op.
func (db *DB) CreateSchema(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logging.Info().
		Str("driver", db.Driver()).
		Int("tables", len(Tables)).
		Msg("Database schema ready")
	return nil
}
