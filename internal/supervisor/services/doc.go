// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

// Package services adapts blocking components to suture.Service.
//
// The watcher and dispatcher implement Serve(ctx) themselves; only the
// ops HTTP server needs a wrapper, because http.Server blocks in
// ListenAndServe and stops through Shutdown rather than a context.
//
//	srv := server.New(cfg, deps).HTTPServer()
//	tree.AddAPIService(services.NewHTTPServerService(srv, srv.Addr, cfg.Server.ShutdownTimeout))
package services
