package manager

import (
	"context"
	"sync"
	"time"
)

// Gate bounds concurrent access to the pipeline. At most capacity
// invocations execute at once; up to queueDepth requests may be inside the
// gate in total (executing plus waiting), and anything beyond that is
// rejected immediately so abandoned requests cannot pile up without bound.
//
// Acquire returns a release func that must be called exactly once, normally
// via defer right at the call site. Release is idempotent: the slot is
// returned on the first call only.
type Gate struct {
	slots   chan struct{} // in-flight bound
	queue   chan struct{} // total occupancy bound (waiting + executing)
	maxWait time.Duration // 0 = wait until ctx is done
}

// NewGate constructs a gate with the given in-flight capacity, total
// occupancy bound and maximum admission wait. queueDepth is raised to
// capacity when smaller; maxWait <= 0 means callers queue until their
// context is canceled.
func NewGate(capacity, queueDepth int, maxWait time.Duration) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	if queueDepth < capacity {
		queueDepth = capacity
	}
	return &Gate{
		slots:   make(chan struct{}, capacity),
		queue:   make(chan struct{}, queueDepth),
		maxWait: maxWait,
	}
}

// Acquire blocks until an in-flight slot is free, the context is canceled,
// or the configured maximum wait elapses. On success it returns the release
// func for the granted slot; on failure the gate is left untouched.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reserve a queue position without blocking; a full queue is
	// backpressure, not something to wait out.
	select {
	case g.queue <- struct{}{}:
		gateOccupancy.Inc()
	default:
		return nil, tooBusyError{reason: "admission queue full"}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-g.queue
			gateOccupancy.Dec()
		}
	}()

	var timeout <-chan time.Time
	if g.maxWait > 0 {
		timer := time.NewTimer(g.maxWait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case g.slots <- struct{}{}:
		acquired = true
		gateInFlight.Inc()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, tooBusyError{reason: "admission wait timed out"}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-g.slots
			<-g.queue
			gateInFlight.Dec()
			gateOccupancy.Dec()
		})
	}
	return release, nil
}

// InFlight reports the number of currently executing holders.
func (g *Gate) InFlight() int { return len(g.slots) }

// Occupancy reports executing plus waiting holders.
func (g *Gate) Occupancy() int { return len(g.queue) }

// Capacity reports the in-flight bound.
func (g *Gate) Capacity() int { return cap(g.slots) }
