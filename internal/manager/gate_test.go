package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// The capacity bound is the one hard guarantee: concurrently outstanding
// tickets never exceed N, whatever the callers do.
func TestGateCapacityBound(t *testing.T) {
	g := NewGate(2, 64, 0)
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("capacity bound violated: peak=%d", p)
	}
	if g.InFlight() != 0 || g.Occupancy() != 0 {
		t.Fatalf("slots leaked: inflight=%d occupancy=%d", g.InFlight(), g.Occupancy())
	}
}

func TestGateReleaseIdempotent(t *testing.T) {
	g := NewGate(1, 4, 0)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // second call must be a no-op, not free a phantom slot

	if g.InFlight() != 0 {
		t.Fatalf("inflight=%d after release", g.InFlight())
	}
	// The single slot is usable again, exactly once.
	r2, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while slot held, got %v", err)
	}
	r2()
}

func TestGateCancelWhileWaitingDoesNotLeak(t *testing.T) {
	g := NewGate(1, 4, 0)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	release()
	// The abandoned wait must not have consumed the queue position or the
	// slot: a fresh acquire succeeds immediately.
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	r2, err := g.Acquire(ctx2)
	if err != nil {
		t.Fatalf("acquire after abandoned wait: %v", err)
	}
	r2()
	if g.Occupancy() != 0 {
		t.Fatalf("occupancy=%d after all releases", g.Occupancy())
	}
}

func TestGateAlreadyCanceledContext(t *testing.T) {
	g := NewGate(1, 4, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if g.Occupancy() != 0 {
		t.Fatalf("occupancy=%d", g.Occupancy())
	}
}

func TestGateQueueFullRejectsImmediately(t *testing.T) {
	g := NewGate(1, 1, 0)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = g.Acquire(context.Background())
	if !IsTooBusy(err) {
		t.Fatalf("expected too-busy, got %v", err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("queue-full rejection should not block, took %s", d)
	}
}

func TestGateMaxWaitTimeout(t *testing.T) {
	g := NewGate(1, 4, 30*time.Millisecond)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := g.Acquire(context.Background()); !IsTooBusy(err) {
		t.Fatalf("expected too-busy after max wait, got %v", err)
	}

	release()
	r2, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after timeout path: %v", err)
	}
	r2()
}
