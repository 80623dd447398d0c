// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/listenstar/internal/models"
)

// QuarantineTimeFormat names quarantine files after the run start time.
const QuarantineTimeFormat = "2006-01-02_15-04-05.000000"

// writeQuarantine stores rejected records as one JSON array in dir. The file
// is named after at; a second run within the same microsecond gets the run
// ID appended instead of overwriting.
func writeQuarantine(dir string, at time.Time, runID string, records []models.Record) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal quarantined records: %w", err)
	}

	stamp := at.Format(QuarantineTimeFormat)
	candidates := []string{stamp + ".json", stamp + "_" + shortID(runID) + ".json"}

	for _, name := range candidates {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) //nolint:gosec
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create quarantine file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			closeQuietly(f)
			return "", fmt.Errorf("write quarantine file: %w", err)
		}
		if err := f.Sync(); err != nil {
			closeQuietly(f)
			return "", fmt.Errorf("sync quarantine file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close quarantine file: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("quarantine file for %s already exists", stamp)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
