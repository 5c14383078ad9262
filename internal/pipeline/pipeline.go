// Package pipeline abstracts the loaded generative model behind a small
// interface so the manager can be exercised against an external diffusion
// runner in production and an in-process stub in tests.
package pipeline

import (
	"context"
	"image"
)

// Input is a normalized generation request. The optional source image has
// already been decoded and validated by the caller; the pipeline never sees
// raw upload bytes.
type Input struct {
	Prompt        string
	Image         image.Image // nil for text-to-image
	GuidanceScale float64
	Steps         int
	Width         int
	Height        int
}

// Output is the result of one pipeline invocation: exactly one image at the
// requested or nearest-supported resolution.
type Output struct {
	Image image.Image
	Steps int
}

// DeviceInfo is coarse telemetry about the compute device backing the
// pipeline. Reported best-effort; zero values mean unknown.
type DeviceInfo struct {
	Accelerator bool
	Name        string
	UsedMemMB   int
	TotalMemMB  int
}

// Pipeline is the loaded, stateful resource. It holds no concurrency
// control of its own: callers must serialize access through the admission
// gate before calling Generate.
type Pipeline interface {
	// Generate runs one inference. Long-running; honors ctx cancellation
	// where the backing implementation can.
	Generate(ctx context.Context, in Input) (*Output, error)
	// Device returns last-known device telemetry without blocking on the
	// backing runtime.
	Device() DeviceInfo
	// Close releases resources associated with the pipeline.
	Close() error
}

// Loader produces a ready Pipeline. Loading may take minutes (weight
// download, device transfer); implementations must honor ctx.
type Loader interface {
	Load(ctx context.Context) (Pipeline, error)
}
