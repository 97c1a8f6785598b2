package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPoolBoundsConcurrencyAndQueuesExcess(t *testing.T) {
	testlog.Start(t)
	p := NewPool(2, 0)
	release := make(chan struct{})
	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	waitFor(t, "two active workers", func() bool { return p.Active() == 2 })
	if q := p.Queued(); q != 3 {
		t.Fatalf("expected 3 queued, got %d", q)
	}
	close(release)
	wg.Wait()
	if peak.Load() != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", peak.Load())
	}

	p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestPoolFIFOWithSingleWorker(t *testing.T) {
	testlog.Start(t)
	p := NewPool(1, 0)
	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		if err := p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	p.Close()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("out of order: %v", order)
		}
	}
	if len(order) != 10 {
		t.Fatalf("expected queued tasks to run after close, got %d", len(order))
	}
}

func TestPoolQueueLimitAndClosed(t *testing.T) {
	testlog.Start(t)
	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("submit first: %v", err)
	}
	<-started
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("submit queued: %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolFull) {
		t.Fatalf("expected ErrPoolFull, got %v", err)
	}
	close(release)
	p.Close()
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	testlog.Start(t)
	p := NewPool(1, 0)
	done := make(chan struct{})
	_ = p.Submit(func() { panic("boom") })
	_ = p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("worker did not survive panic")
	}
	p.Close()
	_ = p.Wait(context.Background())
}

func TestPoolWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	p := NewPool(1, 0)
	release := make(chan struct{})
	defer close(release)
	_ = p.Submit(func() { <-release })
	p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
