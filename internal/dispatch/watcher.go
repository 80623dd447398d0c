// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/metrics"
)

// errWatcherClosed is returned when fsnotify closes its channels under us;
// the supervisor restarts the watcher.
var errWatcherClosed = errors.New("fsnotify watcher closed")

// Enqueuer accepts paths for processing. *Dispatcher implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, path string) error
}

// Watcher observes the ingest directory (not recursively) and enqueues
// every new regular file once it has stopped changing for the settle delay.
// Names that look like files still being produced wait for the longer temp
// settle delay instead; if they are not renamed by then they are queued like
// any other file and the dispatcher routes them by extension.
type Watcher struct {
	dir             string
	settle          time.Duration
	tempSettle      time.Duration
	processExisting bool
	queue           Enqueuer
	log             zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher for cfg.Watch.IngestDir.
func NewWatcher(cfg *config.Config, queue Enqueuer) *Watcher {
	return &Watcher{
		dir:             cfg.Watch.IngestDir,
		settle:          cfg.Dispatch.SettleDelay,
		tempSettle:      cfg.Dispatch.TempSettleDelay,
		processExisting: cfg.Dispatch.ProcessExisting,
		queue:           queue,
		log:             logging.WithComponent("watcher"),
		pending:         make(map[string]*time.Timer),
	}
}

// Serve watches until ctx is cancelled. Implements suture.Service.
func (w *Watcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.log.Warn().Err(err).Msg("Failed to close fsnotify watcher")
		}
	}()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info().Str("dir", w.dir).Dur("settle_delay", w.settle).Msg("Watching ingest directory")

	if w.processExisting {
		w.enqueueExisting(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				w.stopPending()
				return errWatcherClosed
			}
			w.onEvent(ctx, event)

		case err, ok := <-fw.Errors:
			if !ok {
				w.stopPending()
				return errWatcherClosed
			}
			metrics.RecordDispatchEvent("watch_error")
			w.log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// String names the service in supervisor logs.
func (w *Watcher) String() string {
	return "watcher"
}

func (w *Watcher) onEvent(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		w.schedule(ctx, event.Name)
	case event.Has(fsnotify.Write):
		w.reschedule(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// schedule arms the settle timer for a newly created file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		metrics.RecordDispatchEvent("ignored")
		return
	}

	if isTempFile(path) {
		w.log.Debug().Str("path", path).Dur("settle_delay", w.tempSettle).Msg("Temporary file, waiting for rename")
	} else {
		w.log.Info().Str("path", path).Msg("New file in ingest directory")
	}
	w.arm(ctx, path)
}

// arm starts or restarts the settle timer for path. A zero delay fires at once.
func (w *Watcher) arm(ctx context.Context, path string) {
	delay := w.delayFor(path)
	if delay <= 0 {
		w.fire(ctx, path)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(delay)
		return
	}
	w.pending[path] = time.AfterFunc(delay, func() { w.fire(ctx, path) })
}

func (w *Watcher) delayFor(path string) time.Duration {
	if isTempFile(path) {
		return w.tempSettle
	}
	return w.settle
}

// reschedule pushes the settle timer back while a file is still being written.
func (w *Watcher) reschedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.delayFor(path))
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		w.log.Debug().Str("path", path).Msg("File vanished before it settled")
		return
	}
	if isTempFile(path) {
		w.log.Warn().Str("path", path).Msg("Temporary file was never renamed, queueing it as is")
	}
	if err := w.queue.Enqueue(ctx, path); err != nil {
		metrics.RecordDispatchEvent("enqueue_error")
		w.log.Error().Err(err).Str("path", path).Msg("Failed to queue file, it stays in the ingest directory")
	}
}

// enqueueExisting queues files already present when the watcher starts,
// in name order. Temporary names get the temp settle delay first, since a
// writer may still be producing them.
func (w *Watcher) enqueueExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("Failed to list existing files")
		return
	}

	var names, temps []string
	for _, e := range entries {
		switch {
		case !e.Type().IsRegular():
		case isTempFile(e.Name()):
			temps = append(temps, e.Name())
		default:
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		w.fire(ctx, filepath.Join(w.dir, name))
	}
	for _, name := range temps {
		w.arm(ctx, filepath.Join(w.dir, name))
	}
	if len(names)+len(temps) > 0 {
		w.log.Info().Int("files", len(names)).Int("temporary", len(temps)).Msg("Queued existing files")
	}
}

// isTempFile reports names that editors, downloaders and atomic writers use
// for files still being produced.
func isTempFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") || strings.HasSuffix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".part", ".partial", ".swp", ".crdownload":
		return true
	}
	return false
}
