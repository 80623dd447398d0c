// Listenstar - Listening History Ingestion and Star-Schema Loading
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listenstar

package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/listenstar/internal/config"
	"github.com/tomtom215/listenstar/internal/logging"
)

// lockedBuffer is written by supervisor goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietLogger() *slog.Logger {
	return slog.New(logging.NewSlogHandlerWithLogger(zerolog.Nop()))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree() error = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}

	want := DefaultTreeConfig()
	if tree.config != want {
		t.Errorf("config = %+v, want %+v", tree.config, want)
	}
}

func TestTreeConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Supervisor.FailureThreshold = 3
	cfg.Supervisor.FailureBackoff = time.Second

	got := TreeConfigFrom(cfg.Supervisor)
	if got.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %v, want 3", got.FailureThreshold)
	}
	if got.FailureBackoff != time.Second {
		t.Errorf("FailureBackoff = %v, want 1s", got.FailureBackoff)
	}
	if got.ShutdownTimeout != cfg.Supervisor.ShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", got.ShutdownTimeout, cfg.Supervisor.ShutdownTimeout)
	}
}

func TestSupervisorTree_StartsAndStopsBothLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureBackoff:  50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	ingestSvc := newMockService("watcher")
	apiSvc := newMockService("http-server")
	tree.AddIngestService(ingestSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "services to start", func() bool {
		return ingestSvc.starts() >= 1 && apiSvc.starts() >= 1
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}

	if ingestSvc.stops() != ingestSvc.starts() || apiSvc.stops() != apiSvc.starts() {
		t.Error("not every service returned from Serve")
	}
	if report, err := tree.UnstoppedServiceReport(); err != nil || len(report) != 0 {
		t.Errorf("UnstoppedServiceReport() = %v, %v; want empty", report, err)
	}
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("http-server")
	failing.setFailCount(2)
	stable := newMockService("dispatcher")
	tree.AddAPIService(failing)
	tree.AddIngestService(stable)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "failing service to be restarted", func() bool { return failing.starts() >= 3 })

	// The ingest layer is untouched by api-layer restarts.
	if stable.starts() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts())
	}

	cancel()
	<-errCh
}

func TestSupervisorTree_DoNotRestart(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	oneShot := newMockService("one-shot")
	oneShot.setError(suture.ErrDoNotRestart)
	tree.AddIngestService(oneShot)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	<-tree.ServeBackground(ctx)

	if oneShot.starts() != 1 {
		t.Errorf("one-shot service started %d times, want 1", oneShot.starts())
	}
}

func TestSupervisorTree_LogsEventsThroughZerolog(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(logging.NewSlogHandlerWithLogger(zerolog.New(&buf)))

	tree, _ := NewSupervisorTree(logger, TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	failing := newMockService("flaky-watcher")
	failing.setFailCount(1)
	tree.AddIngestService(failing)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	waitFor(t, "restart", func() bool { return failing.starts() >= 2 })
	cancel()
	<-errCh

	if out := buf.String(); !strings.Contains(out, "flaky-watcher") {
		t.Errorf("supervisor log does not mention the failing service:\n%s", out)
	}
}
