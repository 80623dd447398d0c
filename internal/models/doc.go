// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

/*
Package models defines the data types shared across listenstar.

  - Record: one flattened source record, keyed by dotted JSON path
  - Listen, TimeDim: a transformed listen and its time dimension row
  - RunSummary: the persisted outcome of one pipeline run
  - APIResponse and friends: envelopes returned by the ops API

Types carry no behavior beyond small accessors, so every package can import
models without pulling in storage or transport code.
*/
package models
