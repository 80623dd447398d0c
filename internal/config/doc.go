// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

/*
Package config loads Listenstar configuration with Koanf v2.

Configuration is layered, each layer overriding the previous one:

 1. Struct defaults (defaultConfig)
 2. A YAML file: the --config flag, CONFIG_PATH, or the first of DefaultConfigPaths
 3. Environment variables, mapped explicitly (see envMappings)

A .env file in the working directory is loaded into the environment first
(joho/godotenv), so it feeds layer 3.

Example YAML:

	watch:
	  ingest_dir: ./data
	  loaded_dir: ./processed/loaded
	  invalid_dir: ./processed/invalid
	  quarantine_dir: ./processed/invalid_data
	  extensions: [".json", ".txt"]
	database:
	  driver: duckdb
	  path: ./db/listens.duckdb
	dispatch:
	  max_runs_per_second: 2
	journal:
	  backend: badger
	  path: ./db/journal
	server:
	  port: 8089
	logging:
	  level: debug
	  format: console

Environment examples:

	INGEST_DIR=/srv/drop DB_DRIVER=sqlite DB_PATH=/srv/listens.db LOG_LEVEL=debug
	WATCH_EXTENSIONS=.json,.jsonl

Validation uses go-playground/validator tags on the structs plus the
cross-field rules in validate.go.
*/
package config
