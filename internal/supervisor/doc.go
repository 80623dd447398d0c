// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

/*
Package supervisor runs the long-lived services of listenstar under a
suture v4 tree.

	listenstar (root)
	├── ingest-layer
	│   ├── dispatcher   Watermill router feeding the pipeline runner
	│   └── watcher      fsnotify on the ingest directory
	└── api-layer
	    └── ops-http-server (if server.enabled)

Each layer has its own failure counter. A service that returns an error is
restarted; once FailureThreshold failures accumulate (decaying over
FailureDecay seconds) the layer backs off for FailureBackoff. Returning
suture.ErrDoNotRestart stops a service for good.

Supervisor events go through sutureslog into the zerolog-backed slog
handler from the logging package:

	tree, err := supervisor.NewSupervisorTree(
	    logging.NewSlogLogger(),
	    supervisor.TreeConfigFrom(cfg.Supervisor),
	)
	tree.AddIngestService(dispatcher)
	tree.AddIngestService(dispatch.NewWatcher(cfg, dispatcher))
	tree.AddAPIService(services.NewHTTPServerService(srv, srv.Addr, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

Cancelling ctx stops every service; each gets ShutdownTimeout before it is
reported by UnstoppedServiceReport.
*/
package supervisor
