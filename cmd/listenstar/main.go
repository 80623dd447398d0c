// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Command listenstar ingests listening-history exports into a star schema.
//
// It watches an ingest directory, runs every new file through extract,
// validate, transform and load, and moves the file to the loaded or invalid
// directory afterwards. Records that fail validation are quarantined as JSON
// next to the invalid directory.
//
// # Commands
//
//	listenstar [serve]        watch the ingest directory and serve the ops API
//	listenstar ingest FILE... run the pipeline once for each file
//	listenstar init-db        create the store schema and exit
//	listenstar runs           print recent runs from the journal
//
// # Configuration
//
// Settings are layered with Koanf (highest priority wins):
//   - Environment variables (INGEST_DIR, DB_DRIVER, DB_PATH, HTTP_PORT, LOG_LEVEL, ...)
//   - Config file (--config, CONFIG_PATH or ./config.yaml)
//   - Built-in defaults
//
// A .env file in the working directory is loaded first.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The run in progress
// finishes its current stage boundary, the ops server drains for
// server.shutdown_timeout, and the process exits 0.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
