// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/listenstar/internal/models"
)

func TestRelocate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "in", "a.json")
	dstDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(filepath.Dir(src), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}

	dst, err := Relocate(src, dstDir)
	if err != nil {
		t.Fatalf("Relocate() error = %v", err)
	}
	if want := filepath.Join(dstDir, "a.json"); dst != want {
		t.Errorf("Relocate() = %s, want %s", dst, want)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != `{"a":1}` {
		t.Errorf("destination content = %q (err %v), want original bytes", data, err)
	}
	assertMissing(t, src)
}

func TestRelocate_OverwritesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.json")
	dstDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dstDir, "a.json"), []byte("old content that is longer"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("new"), 0o600); err != nil {
		t.Fatal(err)
	}

	dst, err := Relocate(src, dstDir)
	if err != nil {
		t.Fatalf("Relocate() error = %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "new" {
		t.Errorf("destination content = %q, want %q", data, "new")
	}
}

func TestRelocate_CopyFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Relocate(filepath.Join(dir, "missing.json"), filepath.Join(dir, "out"))

	var relErr *RelocationError
	if !errors.As(err, &relErr) {
		t.Fatalf("Relocate() error = %v, want *RelocationError", err)
	}
	if relErr.Phase != PhaseCopy || relErr.Copied {
		t.Errorf("RelocationError = %+v, want copy phase, not copied", relErr)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Relocate() error = %v, want os.ErrNotExist in chain", err)
	}
	assertMissing(t, filepath.Join(dir, "out", "missing.json"))
}

func TestRelocate_RemoveFailure(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	if err := os.MkdirAll(inDir, 0o750); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(inDir, "a.json")
	if err := os.WriteFile(src, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Read-only directory: the file can be read but not unlinked.
	if err := os.Chmod(inDir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(inDir, 0o750) })

	dst, err := Relocate(src, filepath.Join(dir, "out"))

	var relErr *RelocationError
	if !errors.As(err, &relErr) {
		t.Fatalf("Relocate() error = %v, want *RelocationError", err)
	}
	if relErr.Phase != PhaseRemove || !relErr.Copied {
		t.Errorf("RelocationError = %+v, want remove phase after copy", relErr)
	}
	if dst == "" {
		t.Error("Relocate() returned no destination for a completed copy")
	}
	assertExists(t, dst)
	assertExists(t, src)
}

func TestWriteQuarantine(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "quarantine")
	at := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	records := []models.Record{{"artist_msid": "bad"}}

	first, err := writeQuarantine(dir, at, "abcdef0123456789", records)
	if err != nil {
		t.Fatalf("writeQuarantine() error = %v", err)
	}
	if want := filepath.Join(dir, "2026-01-02_03-04-05.000006.json"); first != want {
		t.Errorf("path = %s, want %s", first, want)
	}

	second, err := writeQuarantine(dir, at, "abcdef0123456789", records)
	if err != nil {
		t.Fatalf("second writeQuarantine() error = %v", err)
	}
	if !strings.HasSuffix(second, "_abcdef01.json") {
		t.Errorf("colliding path = %s, want run ID suffix", second)
	}

	if _, err := writeQuarantine(dir, at, "abcdef0123456789", records); err == nil {
		t.Error("third writeQuarantine() error = nil, want collision error")
	}
}

func TestRunResult_Summary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		res         RunResult
		wantStage   string
		wantWarning bool
		wantError   bool
		wantOK      bool
	}{
		{
			name:   "clean run",
			res:    RunResult{Outcome: models.OutcomeLoaded},
			wantOK: true,
		},
		{
			name:      "stage failure",
			res:       RunResult{Outcome: models.OutcomeInvalid, Err: &StageError{Stage: StageTransform, Err: errors.New("x")}},
			wantStage: StageTransform,
			wantError: true,
		},
		{
			name:        "source left behind",
			res:         RunResult{Outcome: models.OutcomeLoaded, Relocation: &RelocationError{Phase: PhaseRemove, Copied: true, Err: errors.New("busy")}},
			wantWarning: true,
		},
		{
			name:      "copy failed",
			res:       RunResult{Outcome: models.OutcomeFailed, Relocation: &RelocationError{Phase: PhaseCopy, Err: errors.New("no space")}},
			wantStage: StageRelocate,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := tt.res.ToSummary()
			if s.FailedStage != tt.wantStage {
				t.Errorf("FailedStage = %q, want %q", s.FailedStage, tt.wantStage)
			}
			if (s.Warning != "") != tt.wantWarning {
				t.Errorf("Warning = %q, want present=%v", s.Warning, tt.wantWarning)
			}
			if (s.Error != "") != tt.wantError {
				t.Errorf("Error = %q, want present=%v", s.Error, tt.wantError)
			}
			if got := tt.res.OK(); got != tt.wantOK {
				t.Errorf("OK() = %v, want %v", got, tt.wantOK)
			}
		})
	}
}
