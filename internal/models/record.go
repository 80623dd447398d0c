// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package models

import (
	"strings"

	"github.com/goccy/go-json"
)

// Record is one flat source record as produced by the extractor.
//
// Keys are dotted paths of the original JSON document (for example
// "track_metadata.artist_name"). Values are one of:
//   - nil (JSON null or a column added by schema normalization)
//   - string
//   - json.Number (numbers keep their literal text)
//   - bool
//   - []any (arrays are not flattened)
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text returns the canonical text of a field and whether it is present.
// A nil value, a missing key and an all-whitespace string are all reported
// as absent.
func (r Record) Text(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	s := ValueText(v)
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// ValueText renders a decoded JSON value as text.
func ValueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
