package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"
)

// Stub is an in-process Pipeline for tests and smoke deployments. It
// returns a solid-color image of the requested size after an optional
// delay and counts invocations, including the maximum number of
// concurrently executing ones.
type Stub struct {
	// Delay simulates inference time. Honors ctx cancellation.
	Delay time.Duration
	// LoadErr, when set, makes Load fail.
	LoadErr error
	// Fill is the output color; zero value is opaque black.
	Fill color.Color
	// Info is reported by Device.
	Info DeviceInfo

	mu        sync.Mutex
	err       error
	calls     int
	active    int
	maxActive int
}

// NewStub returns a stub that answers instantly with a 1x1-capable image.
func NewStub() *Stub { return &Stub{} }

// Load implements Loader so a Stub can stand in for a runner end to end.
func (s *Stub) Load(ctx context.Context) (Pipeline, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetErr installs (or clears) an error returned by every subsequent
// Generate call. Safe to call while requests are in flight.
func (s *Stub) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Stub) Generate(ctx context.Context, in Input) (*Output, error) {
	s.mu.Lock()
	s.calls++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	failure := s.err
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	w, h := in.Width, in.Height
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	fill := s.Fill
	if fill == nil {
		fill = color.Black
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	return &Output{Image: img, Steps: in.Steps}, nil
}

func (s *Stub) Device() DeviceInfo { return s.Info }

func (s *Stub) Close() error { return nil }

// Calls reports how many Generate invocations have started.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MaxActive reports the peak number of concurrently executing Generate
// calls observed so far.
func (s *Stub) MaxActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}
