// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package models

// UnknownReleaseMSID is the reserved release key used when a listen carries
// no release identifier.
const UnknownReleaseMSID = "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"

// UnknownReleaseName is the name stored for the reserved release when the
// source record names no release either.
const UnknownReleaseName = "Unknown"

// Listen is one normalized listening event, ready to be split across the
// star schema.
//
// Required fields are plain values. Optional attributes are pointers and stay
// nil when the source record did not carry a usable value, which the loader
// writes as SQL NULL.
type Listen struct {
	// Artist dimension
	ArtistMSID string `json:"artist_msid"`
	ArtistName string `json:"artist_name"`

	// Track dimension (TrackMSID is derived from TrackName and ArtistMSID)
	TrackMSID   string `json:"track_msid"`
	TrackName   string `json:"track_name"`
	TrackNumber *int64 `json:"track_number,omitempty"`
	DiscNumber  *int64 `json:"disc_number,omitempty"`
	DurationMS  *int64 `json:"track_duration_ms,omitempty"`

	// Release dimension
	ReleaseMSID string  `json:"release_msid"`
	ReleaseName *string `json:"release_name,omitempty"`
	TotalDiscs  *int64  `json:"total_discs,omitempty"`
	TotalTracks *int64  `json:"total_tracks,omitempty"`
	ReleaseYear *int64  `json:"release_date,omitempty"`

	// Fact
	ListenedID string  `json:"listened_id"`
	ListenedAt int64   `json:"listened_at"`
	UserName   string  `json:"user_name"`
	DedupTag   *string `json:"dedup_tag,omitempty"`

	Time TimeDim `json:"time"`
}

// TimeDim is the calendar breakdown of a listen's Unix timestamp, always in UTC.
type TimeDim struct {
	TimestampUnix int64  `json:"timestamp_unix_id"`
	TimestampUTC  string `json:"timestamp_utc"` // 2006-01-02 15:04:05+00:00
	Date          string `json:"date"`          // 2006-01-02
	Time          string `json:"time"`          // 15:04:05
	Weekday       string `json:"weekday"`
	DayOfWeek     int    `json:"day_of_week"` // 0 = Monday
	Day           int    `json:"day"`
	Week          int    `json:"week"` // ISO 8601
	Month         int    `json:"month"`
	Year          int    `json:"year"`
}
