package manager

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/pipeline"
	"imaged/pkg/types"
)

func readyManager(t *testing.T, stub *pipeline.Stub, cfg Config) *Manager {
	t.Helper()
	cfg.Loader = stub
	cfg.Logger = zerolog.Nop()
	m := New(cfg)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func validRequest() types.GenerateRequest {
	return types.GenerateRequest{
		Prompt:        "a voxel fox",
		GuidanceScale: 2.5,
		Steps:         10,
		Width:         64,
		Height:        64,
	}
}

func TestGenerateBeforeStartNeverTouchesPipeline(t *testing.T) {
	stub := pipeline.NewStub()
	m := New(Config{Loader: stub, Logger: zerolog.Nop()})
	_, err := m.Generate(context.Background(), validRequest())
	if !IsNotReady(err) {
		t.Fatalf("expected not-ready, got %v", err)
	}
	if stub.Calls() != 0 {
		t.Fatalf("pipeline invoked %d times before startup", stub.Calls())
	}
}

func TestGenerateValidationBounds(t *testing.T) {
	stub := pipeline.NewStub()
	m := readyManager(t, stub, Config{})

	mutate := func(f func(*types.GenerateRequest)) types.GenerateRequest {
		r := validRequest()
		f(&r)
		return r
	}
	accepted := []types.GenerateRequest{
		mutate(func(r *types.GenerateRequest) { r.GuidanceScale = 1.0 }),
		mutate(func(r *types.GenerateRequest) { r.GuidanceScale = 20.0 }),
		mutate(func(r *types.GenerateRequest) { r.Steps = 1 }),
		mutate(func(r *types.GenerateRequest) { r.Steps = 100 }),
		mutate(func(r *types.GenerateRequest) { r.Width = 64 }),
		mutate(func(r *types.GenerateRequest) { r.Width = 2048 }),
		mutate(func(r *types.GenerateRequest) { r.Height = 64 }),
		mutate(func(r *types.GenerateRequest) { r.Height = 2048 }),
	}
	for i, req := range accepted {
		if _, err := m.Generate(context.Background(), req); err != nil {
			t.Fatalf("boundary request %d rejected: %v", i, err)
		}
	}

	rejected := []types.GenerateRequest{
		mutate(func(r *types.GenerateRequest) { r.Prompt = "  " }),
		mutate(func(r *types.GenerateRequest) { r.GuidanceScale = 0.9 }),
		mutate(func(r *types.GenerateRequest) { r.GuidanceScale = 20.1 }),
		mutate(func(r *types.GenerateRequest) { r.Steps = 0 }),
		mutate(func(r *types.GenerateRequest) { r.Steps = 101 }),
		mutate(func(r *types.GenerateRequest) { r.Width = 63 }),
		mutate(func(r *types.GenerateRequest) { r.Width = 2049 }),
		mutate(func(r *types.GenerateRequest) { r.Width = 0 }),
		mutate(func(r *types.GenerateRequest) { r.Height = 63 }),
		mutate(func(r *types.GenerateRequest) { r.Height = 2049 }),
	}
	calls := stub.Calls()
	for i, req := range rejected {
		if _, err := m.Generate(context.Background(), req); !IsValidation(err) {
			t.Fatalf("out-of-range request %d: expected validation error, got %v", i, err)
		}
	}
	if stub.Calls() != calls {
		t.Fatalf("rejected requests reached the pipeline (%d -> %d)", calls, stub.Calls())
	}
}

func TestGenerateSuccess(t *testing.T) {
	stub := pipeline.NewStub()
	m := readyManager(t, stub, Config{})

	res, err := m.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ActualWidth != 64 || res.ActualHeight != 64 {
		t.Fatalf("resolution %dx%d", res.ActualWidth, res.ActualHeight)
	}
	if res.Steps != 10 {
		t.Fatalf("steps=%d", res.Steps)
	}
	img, err := jpeg.Decode(bytes.NewReader(res.JPEG))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("decoded size %dx%d", b.Dx(), b.Dy())
	}
}

func TestGeneratePipelineErrorReleasesTicket(t *testing.T) {
	stub := pipeline.NewStub()
	m := readyManager(t, stub, Config{MaxConcurrent: 1})

	stub.SetErr(errors.New("CUDA out of memory"))
	_, err := m.Generate(context.Background(), validRequest())
	if !IsPipelineFailure(err) {
		t.Fatalf("expected pipeline failure, got %v", err)
	}

	// The ticket must have been released: a follow-up request may not block.
	stub.SetErr(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.Generate(ctx, validRequest()); err != nil {
		t.Fatalf("generate after failure: %v", err)
	}
}

func TestGenerateInvalidImageReleasesTicket(t *testing.T) {
	stub := pipeline.NewStub()
	m := readyManager(t, stub, Config{MaxConcurrent: 1})
	calls := stub.Calls()

	req := validRequest()
	req.ImageData = []byte("definitely not an image")
	_, err := m.Generate(context.Background(), req)
	if !IsInvalidImage(err) {
		t.Fatalf("expected invalid-image, got %v", err)
	}
	if stub.Calls() != calls {
		t.Fatalf("undecodable input reached the pipeline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := m.Generate(ctx, validRequest()); err != nil {
		t.Fatalf("generate after bad input: %v", err)
	}
}

func TestGenerateWithInputImage(t *testing.T) {
	stub := pipeline.NewStub()
	m := readyManager(t, stub, Config{})

	// Use one of our own outputs as the next input.
	first, err := m.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req := validRequest()
	req.ImageData = first.JPEG
	if _, err := m.Generate(context.Background(), req); err != nil {
		t.Fatalf("image-to-image generate: %v", err)
	}
}

func TestGenerateSerializesAtCapacityOne(t *testing.T) {
	stub := pipeline.NewStub()
	stub.Delay = 30 * time.Millisecond
	m := readyManager(t, stub, Config{MaxConcurrent: 1})

	const n = 5
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Generate(context.Background(), validRequest()); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := stub.MaxActive(); got > 1 {
		t.Fatalf("concurrent pipeline invocations: %d", got)
	}
	if elapsed := time.Since(start); elapsed < n*30*time.Millisecond {
		t.Fatalf("requests were not serialized: %s for %d x 30ms", elapsed, n)
	}
}

func TestGenerateCancelWhileQueued(t *testing.T) {
	stub := pipeline.NewStub()
	stub.Delay = 200 * time.Millisecond
	m := readyManager(t, stub, Config{MaxConcurrent: 1})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		if _, err := m.Generate(context.Background(), validRequest()); err != nil {
			t.Errorf("first generate: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond) // let the first request hold the slot

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := m.Generate(ctx, validRequest()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while queued, got %v", err)
	}

	<-firstDone
	// No leak: the gate still admits after the abandoned wait.
	stub.Delay = 0
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if _, err := m.Generate(ctx2, validRequest()); err != nil {
		t.Fatalf("generate after canceled wait: %v", err)
	}
}
