package workqueue

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()
	q := Config{Log: testLogger(), Workers: 4}.New()

	var ran atomic.Int32
	for range 1000 {
		if err := q.Submit(func() { ran.Add(1) }); err != nil {
			t.Fatalf("Submit returned %v, want nil", err)
		}
	}
	q.Close()
	if n := ran.Load(); n != 1000 {
		t.Fatalf("%d jobs ran before Close returned, want 1000", n)
	}
	if err := q.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Close returned %v, want ErrClosed", err)
	}
	q.Close()
}

func TestSingleWorkerKeepsOrder(t *testing.T) {
	t.Parallel()
	q := Config{Log: testLogger(), Workers: 1}.New()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 50 {
		_ = q.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	q.Close()
	for i, v := range order {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
	if len(order) != 50 {
		t.Fatalf("%d jobs ran, want 50", len(order))
	}
}

func TestPanickingJobKeepsWorker(t *testing.T) {
	t.Parallel()
	q := Config{Log: testLogger(), Workers: 1}.New()

	var ran atomic.Bool
	_ = q.Submit(func() { panic("boom") })
	_ = q.Submit(func() { ran.Store(true) })
	q.Close()
	if !ran.Load() {
		t.Fatalf("job after panicking job did not run")
	}
}
