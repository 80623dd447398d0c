// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"golang.org/x/time/rate"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/logging"
	"github.com/tomtom215/listenstar/internal/metrics"
	"github.com/tomtom215/listenstar/internal/pipeline"
)

const (
	// handlerName identifies the pipeline consumer in router logs.
	handlerName = "listen-pipeline"

	// pathMetadataKey carries the source path next to the payload.
	pathMetadataKey = "path"

	// readyTimeout bounds how long Enqueue waits for the router to come up.
	readyTimeout = 5 * time.Second
)

var (
	// ErrNotRunning is returned by Enqueue while the router is down.
	ErrNotRunning = errors.New("dispatcher is not running")

	// ErrOutsideIngestDir rejects paths that are not directly inside the ingest directory.
	ErrOutsideIngestDir = errors.New("path is not inside the ingest directory")

	// ErrHandlerPanic is recorded on runs routed to invalid after a panic.
	ErrHandlerPanic = errors.New("pipeline panicked")
)

// Processor runs the pipeline for one file. *pipeline.Runner implements it.
type Processor interface {
	EnsureDirectories() error
	CreateDatabase(ctx context.Context) error
	RunPipeline(ctx context.Context, path string) *pipeline.RunResult
	RouteInvalid(ctx context.Context, path string) *pipeline.RunResult
	RouteInvalidCause(ctx context.Context, path string, cause error) *pipeline.RunResult
}

// Dispatcher queues file paths on an in-process Watermill topic and feeds
// them to the pipeline one at a time. GoChannel hands the next message to
// the handler only after the previous one is acked, and the handler always
// acks, so a bad file can never stall or stop the loop.
//
// Dispatcher implements suture.Service. Each Serve call builds a fresh
// pub/sub and router, since closing a router also closes its subscriber.
type Dispatcher struct {
	watch     config.WatchConfig
	dispatch  config.DispatchConfig
	processor Processor
	logger    watermill.LoggerAdapter
	limiter   *rate.Limiter

	mu     sync.Mutex
	pubsub *gochannel.GoChannel
	ready  chan struct{}
}

// New creates a dispatcher and bootstraps the run environment: the ingest,
// output and quarantine directories and the store schema. A bootstrap
// failure is returned so the process can exit before watching anything.
func New(ctx context.Context, cfg *config.Config, processor Processor) (*Dispatcher, error) {
	if err := processor.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}
	if err := processor.CreateDatabase(ctx); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}

	d := &Dispatcher{
		watch:     cfg.Watch,
		dispatch:  cfg.Dispatch,
		processor: processor,
		logger:    logging.NewWatermillAdapter(logging.WithComponent("dispatcher")),
		ready:     make(chan struct{}),
	}
	if cfg.Dispatch.MaxRunsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.Dispatch.MaxRunsPerSecond), 1)
	}
	return d, nil
}

// Serve runs the router until ctx is cancelled.
func (d *Dispatcher) Serve(ctx context.Context) error {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: d.dispatch.BufferSize,
	}, d.logger)

	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: d.dispatch.CloseTimeout,
	}, d.logger)
	if err != nil {
		return fmt.Errorf("create watermill router: %w", err)
	}

	// Recoverer converts panics escaping the handler's own recovery into errors.
	router.AddMiddleware(middleware.Recoverer)
	router.AddConsumerHandler(handlerName, d.dispatch.Topic, pubsub, func(msg *message.Message) error {
		d.handle(ctx, msg)
		return nil
	})

	// Enqueue callers may already be waiting on d.ready, so Serve closes
	// that channel rather than replacing it.
	d.mu.Lock()
	d.pubsub = pubsub
	ready := d.ready
	d.mu.Unlock()

	stopped := make(chan struct{})
	announced := make(chan struct{})
	go func() {
		defer close(announced)
		select {
		case <-router.Running():
			close(ready)
			logging.Info().
				Str("topic", d.dispatch.Topic).
				Str("ingest_dir", d.watch.IngestDir).
				Msg("Dispatcher running")
		case <-ctx.Done():
		case <-stopped:
		}
	}()

	defer func() {
		close(stopped)
		<-announced

		d.mu.Lock()
		d.pubsub = nil
		select {
		case <-ready:
			// Only a closed channel is replaced; an open one is still
			// waited on and the next Serve closes it.
			d.ready = make(chan struct{})
		default:
		}
		d.mu.Unlock()

		if err := pubsub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close dispatcher pub/sub")
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("dispatcher router: %w", err)
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (d *Dispatcher) String() string {
	return "dispatcher"
}

// Enqueue queues path for processing. It waits briefly for the router to be
// running, so events observed during startup are not lost.
func (d *Dispatcher) Enqueue(ctx context.Context, path string) error {
	path, err := d.resolve(path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	ready := d.ready
	d.mu.Unlock()

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrNotRunning
	}

	d.mu.Lock()
	pubsub := d.pubsub
	d.mu.Unlock()
	if pubsub == nil {
		return ErrNotRunning
	}

	msg := message.NewMessage(watermill.NewUUID(), message.Payload(path))
	msg.Metadata.Set(pathMetadataKey, path)
	if corrID := logging.CorrelationIDFromContext(ctx); corrID != "" {
		msg.Metadata.Set("correlation_id", corrID)
	}

	if err := pubsub.Publish(d.dispatch.Topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}

	metrics.RecordDispatchEvent("queued")
	metrics.DispatchQueueDepth.Inc()
	logging.Debug().Str("path", path).Str("message_uuid", msg.UUID).Msg("File queued")
	return nil
}

// resolve cleans path and checks that it sits directly in the ingest directory.
func (d *Dispatcher) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideIngestDir)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	ingest, err := filepath.Abs(d.watch.IngestDir)
	if err != nil {
		return "", fmt.Errorf("resolve ingest dir: %w", err)
	}
	if filepath.Dir(abs) != ingest {
		return "", fmt.Errorf("%w: %s", ErrOutsideIngestDir, path)
	}
	return abs, nil
}

// handle processes one queued file. Every failure, including a panic, ends
// with the file routed to the invalid directory.
func (d *Dispatcher) handle(ctx context.Context, msg *message.Message) {
	metrics.DispatchQueueDepth.Dec()

	path := msg.Metadata.Get(pathMetadataKey)
	if path == "" {
		path = string(msg.Payload)
	}

	var runCtx context.Context
	if corrID := msg.Metadata.Get("correlation_id"); corrID != "" {
		runCtx = logging.ContextWithCorrelationID(ctx, corrID)
	} else {
		runCtx = logging.ContextWithNewCorrelationID(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDispatchEvent("recovered")
			cause := fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			logging.Ctx(runCtx).Error().
				Err(cause).
				Str("path", path).
				Str("message_uuid", msg.UUID).
				Msg("Recovered from pipeline panic")
			d.routeAfterPanic(runCtx, path, cause)
		}
	}()

	if !d.watch.SupportsExtension(strings.ToLower(filepath.Ext(path))) {
		metrics.RecordDispatchEvent("unsupported")
		d.processor.RouteInvalid(runCtx, path)
		return
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			// Shutting down; the file stays in the ingest directory.
			logging.Ctx(runCtx).Warn().Err(err).Str("path", path).Msg("Dispatch throttle interrupted")
			return
		}
	}

	metrics.RecordDispatchEvent("processed")
	d.processor.RunPipeline(runCtx, path)
}

// routeAfterPanic moves the file to invalid. A second panic is logged and
// swallowed so the handler still acks.
func (d *Dispatcher) routeAfterPanic(ctx context.Context, path string, cause error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("path", path).
				Msg("Routing to invalid panicked, file left in place")
		}
	}()
	d.processor.RouteInvalidCause(ctx, path, cause)
}
