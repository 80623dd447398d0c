// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package extract reads listening-history files into flat records.
//
// A file is first decoded as a single JSON document (an array of objects or
// one object). If that fails it is read again as JSON Lines, one object per
// line, with blank lines skipped. A JSON Lines file with a malformed line
// fails as a whole.
//
// Nested objects are flattened into dotted keys:
//
//	{"track_metadata": {"artist_name": "A"}}  ->  {"track_metadata.artist_name": "A"}
//
// Numbers are decoded as json.Number so that their literal text reaches
// validation and key derivation unchanged.
package extract

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listenstar/internal/models"
)

// maxLineBytes bounds a single JSON Lines record.
const maxLineBytes = 16 * 1024 * 1024

// ErrNoRecords is wrapped by ParseError when a file decodes but holds no records.
var ErrNoRecords = errors.New("no records")

// ParseError reports a file that is neither a JSON document nor JSON Lines.
type ParseError struct {
	Path string
	Line int // 1-based line of the first bad JSON Lines record, 0 if not line related
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// File extracts every record of the file at path.
func File(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Bytes(path, data)
}

// Bytes extracts records from already loaded file content. name is only used
// in errors.
func Bytes(name string, data []byte) ([]models.Record, error) {
	if records, err := decodeDocument(data); err == nil {
		if len(records) == 0 {
			return nil, &ParseError{Path: name, Err: ErrNoRecords}
		}
		return records, nil
	}

	records, line, err := decodeLines(data)
	if err != nil {
		return nil, &ParseError{Path: name, Line: line, Err: err}
	}
	if len(records) == 0 {
		return nil, &ParseError{Path: name, Err: ErrNoRecords}
	}
	return records, nil
}

// decodeDocument decodes data as exactly one JSON value.
func decodeDocument(data []byte) ([]models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return nil, errors.New("more than one JSON value")
	}

	return toRecords(doc)
}

// decodeLines decodes data as JSON Lines. On failure it also returns the
// offending line number.
func decodeLines(data []byte) ([]models.Record, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []models.Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, line, err
		}
		if obj == nil {
			return nil, line, errors.New("line is not a JSON object")
		}
		records = append(records, Flatten(obj))
	}
	if err := scanner.Err(); err != nil {
		return nil, line + 1, err
	}
	return records, 0, nil
}

func toRecords(doc any) ([]models.Record, error) {
	switch v := doc.(type) {
	case map[string]any:
		return []models.Record{Flatten(v)}, nil
	case []any:
		records := make([]models.Record, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is not a JSON object", i)
			}
			records = append(records, Flatten(obj))
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unsupported top-level JSON value %T", doc)
	}
}

// Flatten turns nested objects into dotted keys. Arrays are kept as values.
func Flatten(obj map[string]any) models.Record {
	out := make(models.Record, len(obj))
	flattenInto(out, "", obj)
	return out
}

func flattenInto(out models.Record, prefix string, obj map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}
