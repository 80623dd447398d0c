// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package schema

import "regexp"

var (
	uuidPattern     = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)
	unixPattern     = regexp.MustCompile(`^\d{10}$`)
	digitsPattern   = regexp.MustCompile(`^\d+$`)
	integralPattern = regexp.MustCompile(`^\d+(\.0)?$`)
	yearPattern     = regexp.MustCompile(`\d{4}$`)
)

// ListenSchema returns the required columns of a listening-history record,
// named after canonicalization (feed prefixes already stripped).
func ListenSchema() *Schema {
	return New(
		Column{Name: "artist_msid", Pattern: uuidPattern},
		Column{Name: "release_msid", Pattern: uuidPattern, AllowEmpty: true},
		Column{Name: "listened_at", Pattern: unixPattern},
		Column{Name: "user_name"},
		Column{Name: "artist_name"},
		Column{Name: "track_name"},
		Column{Name: "release_name", AllowEmpty: true},
		Column{Name: "tracknumber", Pattern: digitsPattern, AllowEmpty: true},
		Column{Name: "dedup_tag", Pattern: integralPattern, AllowEmpty: true},
		Column{Name: "discnumber", Pattern: digitsPattern, AllowEmpty: true},
		Column{Name: "duration_ms", Pattern: integralPattern, AllowEmpty: true},
		Column{Name: "track_length", Pattern: digitsPattern, AllowEmpty: true},
		Column{Name: "duration", Pattern: digitsPattern, AllowEmpty: true},
		Column{Name: "track_number", Pattern: digitsPattern, AllowEmpty: true},
		Column{Name: "date", Pattern: yearPattern, AllowEmpty: true},
		Column{Name: "totaldiscs", Pattern: digitsPattern, AllowEmpty: true},
		Column{Name: "totaltracks", Pattern: digitsPattern, AllowEmpty: true},
	)
}
