package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := New(discardLogger(), time.Second)
	if err := s.Add("sweep", "every now and then", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunAppliesTimeoutAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	s := New(discardLogger(), 50*time.Millisecond)
	var sawDeadline atomic.Bool
	s.run("sweep", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return errors.New("boom")
	})
	if !sawDeadline.Load() {
		t.Fatal("job context has no deadline")
	}
}

func TestScheduledJobRuns(t *testing.T) {
	t.Parallel()

	s := New(discardLogger(), time.Second)
	ran := make(chan struct{}, 1)
	if err := s.Add("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
}

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

func TestPanickingJobIsLoggedThroughSlog(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	s := New(slog.New(slog.NewJSONHandler(out, nil)), time.Second)
	if err := s.Add("explode", "@every 1s", func(context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), `"msg":"cron: panic"`) {
			if !strings.Contains(out.String(), "boom") {
				t.Fatalf("panic value missing from log: %s", out.String())
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("recovered panic not logged as JSON: %s", out.String())
}

func TestCronLoggerAddsError(t *testing.T) {
	t.Parallel()

	out := &lockedBuffer{}
	cl := cronLogger{logger: slog.New(slog.NewJSONHandler(out, nil))}
	cl.Error(errors.New("disk full"), "job failed", "entry", 3)

	got := out.String()
	for _, want := range []string{`"msg":"cron: job failed"`, `"entry":3`, `"error":"disk full"`, `"level":"ERROR"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("log line %s missing %s", got, want)
		}
	}
}
