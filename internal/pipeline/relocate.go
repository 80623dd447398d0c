// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Relocate moves src into dstDir under its base name, replacing any file of
// the same name. The move is a copy (destination fsynced and closed) followed
// by removal of the source, so it also works across file systems.
//
// A copy failure leaves src untouched and returns *RelocationError with
// Phase "copy". A removal failure after a complete copy returns the
// destination path together with *RelocationError{Phase: "remove", Copied: true}.
func Relocate(src, dstDir string) (string, error) {
	dst := filepath.Join(dstDir, filepath.Base(src))

	if err := copyFile(src, dst); err != nil {
		return "", &RelocationError{Phase: PhaseCopy, Source: src, Dest: dst, Err: err}
	}

	if err := os.Remove(src); err != nil {
		return dst, &RelocationError{Phase: PhaseRemove, Source: src, Dest: dst, Copied: true, Err: err}
	}
	return dst, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // src comes from the watched ingest directory
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeQuietly(in)

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) //nolint:gosec
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if err != nil {
			closeQuietly(out)
			_ = os.Remove(dst) // no partial copies left behind
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync destination: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close() // Explicitly ignore error - cleanup is best-effort
	}
}
