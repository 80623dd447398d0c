// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

/*
Package dispatch turns files dropped into the ingest directory into pipeline runs.

Two supervised services cooperate:

  - Watcher observes the ingest directory with fsnotify. Create events for
    regular files arm a settle timer; once the file has stopped changing it
    is handed to the Dispatcher. In-progress names (.part, .tmp, dotfiles)
    wait for the longer temp settle delay, so a rename usually replaces them
    first.
  - Dispatcher publishes each path to an in-process Watermill GoChannel topic.
    A single router consumer runs the pipeline for one file at a time.

Files with a supported extension run the full pipeline; anything else is
routed straight to the invalid directory. Failures and panics inside the
handler are recovered and logged, the file is routed to invalid, and the
message is always acked so the loop keeps going.

The ops API queues files through the same path:

	err := dispatcher.Enqueue(ctx, "data/listens-2019-02.jsonl")
*/
package dispatch
