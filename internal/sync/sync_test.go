package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store/memory"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func (d *mockDestination) Name() string { return "mock" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	ms := memory.New()
	seedDraft(t, ms, "kb-1", "T1", model.Block{Kind: model.KindTag, Value: "Buss"})

	dest := &mockDestination{}
	sched := NewScheduler(ms, []Destination{dest}, 50*time.Millisecond, testLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	// 1 header + 1 draft
	if lines := nonEmptyLines(string(data)); len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(memory.New(), nil, time.Minute, testLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	failing := &mockDestination{err: errors.New("bucket gone")}
	ok := &mockDestination{}

	sched := NewScheduler(memory.New(), []Destination{failing, ok}, time.Second, testLogger())
	sched.Start()

	// Wait for the initial sync.
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	// A failing destination does not stop the others.
	if failing.writes.Load() < 1 || ok.writes.Load() < 1 {
		t.Fatalf("writes: failing=%d ok=%d", failing.writes.Load(), ok.writes.Load())
	}
}

func TestSchedulerSyncNow(t *testing.T) {
	ms := memory.New()
	dest := &mockDestination{}
	sched := NewScheduler(ms, []Destination{dest}, time.Minute, testLogger())

	if err := sched.SyncNow(context.Background()); err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if dest.writes.Load() != 1 {
		t.Errorf("writes = %d, want 1", dest.writes.Load())
	}

	bad := NewScheduler(ms, []Destination{&mockDestination{err: errors.New("denied")}}, time.Minute, testLogger())
	if err := bad.SyncNow(context.Background()); err == nil {
		t.Error("expected destination error")
	}
}
