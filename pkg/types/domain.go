package types

import "time"

// GenerateRequest carries a single image generation request through the
// service. It is assembled by the HTTP layer from the multipart form and
// consumed by the manager; ImageData is the raw, still-undecoded upload.
type GenerateRequest struct {
	// Text prompt driving generation or transformation.
	Prompt string
	// Guidance scale for the diffusion process.
	GuidanceScale float64
	// Number of inference steps.
	Steps int
	// Requested output width in pixels.
	Width int
	// Requested output height in pixels.
	Height int
	// Optional input image bytes (any registered codec). Nil for pure
	// text-to-image requests.
	ImageData []byte
	// Server-assigned correlation id. Logging and response headers only,
	// never business logic.
	CorrelationID string
}

// GenerateResult is the outcome of one successful pipeline invocation.
// Consumed immediately while building the response, never persisted.
type GenerateResult struct {
	// Encoded JPEG bytes of the output image.
	JPEG []byte
	// Actual output resolution (may differ from the requested one when the
	// pipeline snaps to a supported size).
	ActualWidth  int
	ActualHeight int
	// Inference steps actually used.
	Steps int
	// Time spent inside the lifecycle after admission (decode + inference +
	// encode).
	Elapsed time.Duration
}
