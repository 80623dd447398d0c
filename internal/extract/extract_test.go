// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package extract

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listenstar/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestFile_JSONArray(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "listens.json", `[
		{"user_name": "u1", "listened_at": 1550000000},
		{"user_name": "u2", "listened_at": 1550000001}
	]`)

	records, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if got := records[1]["listened_at"]; got != json.Number("1550000001") {
		t.Errorf("listened_at = %#v, want json.Number(1550000001)", got)
	}
}

func TestFile_SingleObject(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "one.json", `{"user_name": "u1"}`)

	records, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if len(records) != 1 || records[0]["user_name"] != "u1" {
		t.Errorf("File() = %v, want one record for u1", records)
	}
}

func TestFile_JSONLinesFallback(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "listens.txt",
		`{"user_name":"u1","track_metadata":{"artist_name":"A","additional_info":{"duration_ms":215000}}}`+"\n"+
			"\n"+
			`{"user_name":"u2","track_metadata":{"artist_name":"B"}}`+"\n")

	records, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2 (blank line skipped)", len(records))
	}

	want := models.Record{
		"user_name":                                  "u1",
		"track_metadata.artist_name":                 "A",
		"track_metadata.additional_info.duration_ms": json.Number("215000"),
	}
	if !reflect.DeepEqual(records[0], want) {
		t.Errorf("records[0] = %v, want %v", records[0], want)
	}
}

func TestFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		wantLine int
		wantErr  error
	}{
		{"malformed line fails whole file", "{\"a\":1}\n{not json}\n{\"a\":2}\n", 2, nil},
		{"empty file", "", 0, ErrNoRecords},
		{"only blank lines", "\n\n  \n", 0, ErrNoRecords},
		{"empty array", "[]", 0, ErrNoRecords},
		{"scalar document", "42", 1, nil},
		{"array of scalars", "[1, 2]", 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "bad.json", tt.content)

			_, err := File(path)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("File() error = %v, want *ParseError", err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("ParseError.Line = %d, want %d", pe.Line, tt.wantLine)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("File() error = %v, want wrapping %v", err, tt.wantErr)
			}
		})
	}
}

func TestFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := File(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("File() error = %v, want os.ErrNotExist", err)
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": "deep"}},
		"d": []any{"x", "y"},
		"e": nil,
	}
	want := models.Record{"a.b.c": "deep", "d": []any{"x", "y"}, "e": nil}

	if got := Flatten(in); !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}
