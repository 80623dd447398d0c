// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

/*
Package middleware provides HTTP middleware for the ops server.

  - RequestID: X-Request-ID handling plus a logging correlation ID
  - PrometheusMetrics: request count and latency per chi route pattern

Both are plain func(http.Handler) http.Handler and plug into chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
