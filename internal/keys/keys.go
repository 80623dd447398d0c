// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package keys derives the content-addressed surrogate keys of the star schema.
//
// A key is the hex MD5 digest of the canonical text of its fields, joined in
// order with no separator:
//
//	track_msid  = Derive(track_name, artist_msid)
//	listened_id = Derive(track_msid, listened_at, user_name, dedup_tag)
//
// The field order is part of the stored data. Changing it re-keys every row.
package keys

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Length is the length of every derived key.
const Length = 32

// Derive returns the hex MD5 digest of the concatenated canonical text of fields.
func Derive(fields ...any) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(Canonical(f))
	}
	sum := md5.Sum([]byte(b.String())) //nolint:gosec // see package doc
	return hex.EncodeToString(sum[:])
}

// Track returns the track surrogate key.
func Track(trackName, artistMSID string) string {
	return Derive(trackName, artistMSID)
}

// Listen returns the fact surrogate key. A nil dedup tag contributes nothing.
func Listen(trackMSID string, listenedAt int64, userName string, dedupTag *string) string {
	return Derive(trackMSID, listenedAt, userName, dedupTag)
}

// Canonical renders a single field the way Derive sees it.
//
// nil and nil pointers become "", json.Number keeps its literal text,
// integers are base 10 and floats use the shortest round-trip form.
func Canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case fmt.Stringer:
		if isNilPointer(v) {
			return ""
		}
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return Canonical(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
