// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package transform turns validated source records into normalized listens.
//
// Field resolution rules:
//   - duration: duration_ms, else duration x 1000, else track_length x 1000
//   - track number: tracknumber, else track_number
//   - track name: everything from the first "(" is removed and the rest trimmed
//   - release: missing id becomes the reserved unknown release; when the name
//     is missing too it becomes "Unknown". A known id with no name keeps a
//     nil name (NULL in the store)
//   - release year: last four characters of date
//
// Surrogate keys come from the keys package and the time dimension is
// derived from listened_at in UTC.
package transform

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/listenstar/internal/keys"
	"github.com/tomtom215/listenstar/internal/models"
)

// FeedPrefixes are stripped from raw record keys by Canonicalize.
var FeedPrefixes = []string{"track_metadata.", "additional_info."}

// ErrMissingField is wrapped by TransformError when a required field is absent.
var ErrMissingField = errors.New("missing required field")

// TransformError reports a record that cannot be normalized. The whole batch
// fails with it.
type TransformError struct {
	Row   int
	Field string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform row %d field %s: %v", e.Row, e.Field, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Canonicalize strips the feed prefixes from every key. When a stripped key
// collides with one that was already unprefixed, the unprefixed value wins.
// Running it twice is a no-op.
func Canonicalize(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, rec := range records {
		canon := make(models.Record, len(rec))
		var renamed []string
		for k, v := range rec {
			name := canonicalName(k)
			if name != k {
				renamed = append(renamed, k)
				continue
			}
			canon[k] = v
		}
		for _, k := range renamed {
			name := canonicalName(k)
			if _, exists := canon[name]; !exists {
				canon[name] = rec[k]
			}
		}
		out[i] = canon
	}
	return out
}

func canonicalName(key string) string {
	for _, p := range FeedPrefixes {
		key = strings.ReplaceAll(key, p, "")
	}
	return key
}

// Transform normalizes every record. It fails on the first record that lacks
// a required field.
func Transform(records []models.Record) ([]models.Listen, error) {
	records = Canonicalize(records)

	listens := make([]models.Listen, 0, len(records))
	for i, rec := range records {
		l, err := transformRecord(rec)
		if err != nil {
			var te *TransformError
			if errors.As(err, &te) {
				te.Row = i
			}
			return nil, err
		}
		listens = append(listens, l)
	}
	return listens, nil
}

func transformRecord(rec models.Record) (models.Listen, error) {
	var l models.Listen

	listenedAt, err := requiredInt(rec, "listened_at")
	if err != nil {
		return l, err
	}
	if l.ArtistMSID, err = requiredText(rec, "artist_msid"); err != nil {
		return l, err
	}
	if l.ArtistName, err = requiredText(rec, "artist_name"); err != nil {
		return l, err
	}
	if l.UserName, err = requiredText(rec, "user_name"); err != nil {
		return l, err
	}
	rawName, err := requiredText(rec, "track_name")
	if err != nil {
		return l, err
	}

	l.TrackName = CleanTrackName(rawName)
	l.TrackNumber = coalesce(optionalInt(rec, "tracknumber"), optionalInt(rec, "track_number"))
	l.DiscNumber = optionalInt(rec, "discnumber")
	l.DurationMS = ResolveDuration(rec)

	releaseMSID, hasRelease := rec.Text("release_msid")
	releaseName, hasName := rec.Text("release_name")
	switch {
	case !hasRelease && !hasName:
		l.ReleaseMSID = models.UnknownReleaseMSID
		unknown := models.UnknownReleaseName
		l.ReleaseName = &unknown
	case !hasRelease:
		l.ReleaseMSID = models.UnknownReleaseMSID
		l.ReleaseName = &releaseName
	default:
		l.ReleaseMSID = releaseMSID
		if hasName {
			l.ReleaseName = &releaseName
		}
	}
	l.TotalDiscs = optionalInt(rec, "totaldiscs")
	l.TotalTracks = optionalInt(rec, "totaltracks")
	l.ReleaseYear = releaseYear(rec)

	if tag, ok := rec.Text("dedup_tag"); ok {
		l.DedupTag = &tag
	}

	l.ListenedAt = listenedAt
	l.TrackMSID = keys.Track(l.TrackName, l.ArtistMSID)
	l.ListenedID = keys.Listen(l.TrackMSID, l.ListenedAt, l.UserName, l.DedupTag)
	l.Time = TimeDimension(listenedAt)

	return l, nil
}

// CleanTrackName removes any parenthetical suffix. A name that would become
// empty is kept, trimmed.
func CleanTrackName(name string) string {
	if i := strings.Index(name, "("); i >= 0 {
		if cleaned := strings.TrimSpace(name[:i]); cleaned != "" {
			return cleaned
		}
	}
	return strings.TrimSpace(name)
}

// ResolveDuration picks the track duration in milliseconds.
func ResolveDuration(rec models.Record) *int64 {
	if ms := optionalInt(rec, "duration_ms"); ms != nil {
		return ms
	}
	for _, field := range []string{"duration", "track_length"} {
		s := optionalInt(rec, field)
		if s == nil || *s > math.MaxInt64/1000 || *s < math.MinInt64/1000 {
			continue
		}
		ms := *s * 1000
		return &ms
	}
	return nil
}

// TimeDimension breaks a Unix timestamp down into the time dimension, in UTC.
func TimeDimension(unix int64) models.TimeDim {
	t := time.Unix(unix, 0).UTC()
	_, week := t.ISOWeek()
	return models.TimeDim{
		TimestampUnix: unix,
		TimestampUTC:  t.Format("2006-01-02 15:04:05") + "+00:00",
		Date:          t.Format("2006-01-02"),
		Time:          t.Format("15:04:05"),
		Weekday:       t.Weekday().String(),
		DayOfWeek:     (int(t.Weekday()) + 6) % 7,
		Day:           t.Day(),
		Week:          week,
		Month:         int(t.Month()),
		Year:          t.Year(),
	}
}

func releaseYear(rec models.Record) *int64 {
	date, ok := rec.Text("date")
	if !ok {
		return nil
	}
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.ParseInt(date[len(date)-4:], 10, 64)
	if err != nil {
		return nil
	}
	return &year
}

func requiredText(rec models.Record, field string) (string, error) {
	s, ok := rec.Text(field)
	if !ok {
		return "", &TransformError{Field: field, Err: ErrMissingField}
	}
	return s, nil
}

func requiredInt(rec models.Record, field string) (int64, error) {
	s, ok := rec.Text(field)
	if !ok {
		return 0, &TransformError{Field: field, Err: ErrMissingField}
	}
	n, err := parseInt(s)
	if err != nil {
		return 0, &TransformError{Field: field, Err: err}
	}
	return n, nil
}

// optionalInt returns nil for missing or unparseable values.
func optionalInt(rec models.Record, field string) *int64 {
	s, ok := rec.Text(field)
	if !ok {
		return nil
	}
	n, err := parseInt(s)
	if err != nil {
		return nil
	}
	return &n
}

// int64Bound is 2^63, the first float64 outside the int64 range.
const int64Bound = float64(1 << 63)

// parseInt accepts integers and integral decimals such as "215000.0".
// Values outside the int64 range are rejected.
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if f >= int64Bound || f < -int64Bound {
		return 0, fmt.Errorf("out of int64 range: %q", s)
	}
	return int64(f), nil
}

func coalesce(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
