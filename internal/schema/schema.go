// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package schema classifies extracted records against a declarative set of
// required columns.
//
// A Schema is plain data: an ordered list of columns, each with an optional
// format pattern and an emptiness rule. It is built once and passed to the
// pipeline runner, which uses Split to separate loadable records from the
// ones that go to quarantine.
//
// Patterns use Go regexp search semantics. Anchor them with ^ and $ when the
// whole value has to match.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tomtom215/listenstar/internal/models"
)

// Column is one required column.
type Column struct {
	Name string

	// Pattern is checked against the canonical text of non-empty values.
	// nil accepts any value.
	Pattern *regexp.Regexp

	// AllowEmpty lets the column be missing, null or blank.
	AllowEmpty bool
}

// Schema is an ordered set of required columns.
type Schema struct {
	Columns []Column
}

// New builds a schema. Repeated column names collapse to their first
// declaration.
func New(columns ...Column) *Schema {
	seen := make(map[string]struct{}, len(columns))
	out := make([]Column, 0, len(columns))
	for _, c := range columns {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c)
	}
	return &Schema{Columns: out}
}

// Names returns the column names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Normalize returns copies of records that carry exactly the schema's
// columns. Missing columns are added with a nil value and every other key is
// dropped. The input records are not modified.
func (s *Schema) Normalize(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, rec := range records {
		norm := make(models.Record, len(s.Columns))
		for _, c := range s.Columns {
			norm[c.Name] = rec[c.Name]
		}
		out[i] = norm
	}
	return out
}

// FieldFailure explains why one column of one record was rejected.
type FieldFailure struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (f FieldFailure) String() string {
	return fmt.Sprintf("row %d column %q: %s (value %q)", f.Row, f.Column, f.Reason, f.Value)
}

// Check returns every column failure of one record. row is copied into the
// failures for reporting.
func (s *Schema) Check(row int, rec models.Record) []FieldFailure {
	var failures []FieldFailure
	for _, c := range s.Columns {
		text := models.ValueText(rec[c.Name])
		if strings.TrimSpace(text) == "" {
			if !c.AllowEmpty {
				failures = append(failures, FieldFailure{Row: row, Column: c.Name, Value: text, Reason: "empty value not allowed"})
			}
			continue
		}
		if c.Pattern != nil && !c.Pattern.MatchString(text) {
			failures = append(failures, FieldFailure{
				Row:    row,
				Column: c.Name,
				Value:  text,
				Reason: fmt.Sprintf("does not match %s", c.Pattern.String()),
			})
		}
	}
	return failures
}

// Validate returns the indices of failing records in ascending order.
// An empty batch has no failures.
func (s *Schema) Validate(records []models.Record) []int {
	var failed []int
	for i, rec := range records {
		if len(s.Check(i, rec)) > 0 {
			failed = append(failed, i)
		}
	}
	return failed
}

// Split partitions records into valid and invalid, preserving order.
//
// Valid records come back normalized to the schema's columns. Invalid
// records are returned exactly as passed in, with every field kept, so the
// caller quarantines whatever form it validated: the pipeline passes
// canonicalized records (feed prefixes stripped), not the raw source rows.
// len(valid)+len(invalid) always equals len(records).
func (s *Schema) Split(records []models.Record) (valid, invalid []models.Record) {
	failed := s.Validate(records)
	normalized := s.Normalize(records)

	next := 0
	for i := range records {
		if next < len(failed) && failed[next] == i {
			invalid = append(invalid, records[i])
			next++
			continue
		}
		valid = append(valid, normalized[i])
	}
	return valid, invalid
}
