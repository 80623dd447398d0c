// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package schema

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listenstar/internal/models"
)

func validListen() models.Record {
	return models.Record{
		"artist_msid": "11111111-1111-1111-1111-111111111111",
		"track_name":  "Song (Live)",
		"artist_name": "A",
		"user_name":   "u1",
		"listened_at": "1550000000",
	}
}

func TestNew_CollapsesDuplicateColumns(t *testing.T) {
	t.Parallel()

	s := New(
		Column{Name: "a", AllowEmpty: true},
		Column{Name: "b"},
		Column{Name: "a"},
	)

	if got, want := s.Names(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if !s.Columns[0].AllowEmpty {
		t.Error("first declaration of a duplicate column should win")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	s := New(Column{Name: "a"}, Column{Name: "b", AllowEmpty: true})
	in := []models.Record{{"a": "x", "extra": "dropped"}}

	out := s.Normalize(in)

	want := models.Record{"a": "x", "b": nil}
	if !reflect.DeepEqual(out[0], want) {
		t.Errorf("Normalize() = %v, want %v", out[0], want)
	}
	if _, ok := in[0]["extra"]; !ok {
		t.Error("Normalize() must not modify its input")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s := ListenSchema()

	badPattern := validListen()
	badPattern["listened_at"] = "155000000" // nine digits

	missingRequired := validListen()
	delete(missingRequired, "user_name")

	blankRequired := validListen()
	blankRequired["artist_name"] = "   "

	numeric := validListen()
	numeric["listened_at"] = json.Number("1550000000")
	numeric["duration_ms"] = json.Number("215000.0")
	numeric["dedup_tag"] = json.Number("2")

	tests := []struct {
		name    string
		records []models.Record
		want    []int
	}{
		{"empty batch", nil, nil},
		{"all valid", []models.Record{validListen(), validListen()}, nil},
		{"pattern mismatch", []models.Record{validListen(), badPattern}, []int{1}},
		{"missing required", []models.Record{missingRequired, validListen()}, []int{0}},
		{"blank required", []models.Record{blankRequired}, []int{0}},
		{"numbers keep their literal text", []models.Record{numeric}, nil},
		{"several failures ascending", []models.Record{badPattern, validListen(), missingRequired}, []int{0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Validate(tt.records); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_OptionalPatterns(t *testing.T) {
	t.Parallel()

	s := ListenSchema()

	tests := []struct {
		column string
		value  any
		valid  bool
	}{
		{"release_msid", nil, true},
		{"release_msid", "not-a-uuid", false},
		{"tracknumber", "7", true},
		{"tracknumber", "7a", false},
		{"date", "2004", true},
		{"date", "05/06/2004", true},
		{"date", "2004-05", false},
		{"duration_ms", "215000", true},
		{"duration_ms", "215000.5", false},
		{"dedup_tag", "0.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.column+"="+models.ValueText(tt.value), func(t *testing.T) {
			t.Parallel()
			rec := validListen()
			rec[tt.column] = tt.value
			failed := len(s.Validate([]models.Record{rec})) > 0
			if failed == tt.valid {
				t.Errorf("%s=%v: valid = %v, want %v (failures %v)", tt.column, tt.value, !failed, tt.valid, s.Check(0, rec))
			}
		})
	}
}

func TestSplit_PartitionIsComplete(t *testing.T) {
	t.Parallel()

	s := ListenSchema()

	bad := validListen()
	bad["listened_at"] = "yesterday"

	batches := [][]models.Record{
		nil,
		{validListen()},
		{bad},
		{validListen(), bad},
		{bad, validListen(), bad, validListen(), validListen()},
	}

	for i, batch := range batches {
		valid, invalid := s.Split(batch)
		if len(valid)+len(invalid) != len(batch) {
			t.Errorf("batch %d: valid %d + invalid %d != total %d", i, len(valid), len(invalid), len(batch))
		}
	}
}

func TestSplit_InvalidKeepsOriginalRecord(t *testing.T) {
	t.Parallel()

	s := ListenSchema()

	bad := validListen()
	bad["listened_at"] = "yesterday"
	bad["unrelated"] = "kept"

	valid, invalid := s.Split([]models.Record{validListen(), bad})

	if len(valid) != 1 || len(invalid) != 1 {
		t.Fatalf("Split() = %d valid, %d invalid, want 1 and 1", len(valid), len(invalid))
	}
	if !reflect.DeepEqual(invalid[0], bad) {
		t.Errorf("invalid record = %v, want original %v", invalid[0], bad)
	}
	if _, ok := valid[0]["release_msid"]; !ok {
		t.Error("valid record should be normalized to the schema columns")
	}
}

func TestCheck_ReportsReasons(t *testing.T) {
	t.Parallel()

	s := New(
		Column{Name: "id", Pattern: regexp.MustCompile(`^\d+$`)},
		Column{Name: "name"},
	)

	failures := s.Check(3, models.Record{"id": "x1"})
	if len(failures) != 2 {
		t.Fatalf("Check() returned %d failures, want 2: %v", len(failures), failures)
	}
	if failures[0].Column != "id" || failures[0].Row != 3 {
		t.Errorf("failures[0] = %+v, want column id row 3", failures[0])
	}
	if failures[1].Column != "name" {
		t.Errorf("failures[1].Column = %s, want name", failures[1].Column)
	}
}
