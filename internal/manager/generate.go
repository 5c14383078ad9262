package manager

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"time"

	// Register decoders for the optional input image.
	_ "image/gif"
	_ "image/png"

	"imaged/internal/pipeline"
	"imaged/pkg/types"
)

// jpegQuality for response encoding.
const jpegQuality = 95

// Generate drives one request through the full lifecycle: validate,
// readiness check, admission, input decode, pipeline invocation, JPEG
// encode. The admission ticket is released on every exit path past
// acquisition via the single deferred release.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error) {
	if err := m.limits.validate(req); err != nil {
		return nil, err
	}

	m.mu.RLock()
	state := m.state
	p := m.pipe
	m.mu.RUnlock()
	if state != StateReady || p == nil {
		return nil, notReadyError{state: state}
	}

	logger := m.log.With().Str("request_id", req.CorrelationID).Logger()
	queued := time.Now()
	logger.Debug().Msg("request queued, waiting for admission")

	release, err := m.gate.Acquire(ctx)
	if err != nil {
		if IsTooBusy(err) {
			generationsTotal.WithLabelValues("rejected").Inc()
			logger.Warn().Dur("wait", time.Since(queued)).Msg("admission rejected")
		}
		return nil, err
	}
	defer release()

	wait := time.Since(queued)
	admissionWait.Observe(wait.Seconds())
	start := time.Now()
	logger.Debug().Dur("wait", wait).Msg("admitted, processing")

	var src image.Image
	if len(req.ImageData) > 0 {
		img, _, derr := image.Decode(bytes.NewReader(req.ImageData))
		if derr != nil {
			generationsTotal.WithLabelValues("bad_input").Inc()
			logger.Warn().Err(derr).Msg("input image rejected")
			return nil, invalidImageError{err: derr}
		}
		src = img
	}

	out, err := p.Generate(ctx, pipeline.Input{
		Prompt:        req.Prompt,
		Image:         src,
		GuidanceScale: req.GuidanceScale,
		Steps:         req.Steps,
		Width:         req.Width,
		Height:        req.Height,
	})
	if err != nil {
		if ctx.Err() != nil {
			generationsTotal.WithLabelValues("canceled").Inc()
			return nil, ctx.Err()
		}
		generationsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Dur("dur", time.Since(start)).Msg("pipeline invocation failed")
		return nil, pipelineError{err: err}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		generationsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("output encode failed")
		return nil, pipelineError{err: err}
	}

	elapsed := time.Since(start)
	bounds := out.Image.Bounds()
	generationsTotal.WithLabelValues("ok").Inc()
	generationDuration.Observe(elapsed.Seconds())
	logger.Info().
		Dur("wait", wait).
		Dur("dur", elapsed).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("steps", out.Steps).
		Int("bytes", buf.Len()).
		Msg("generation complete")

	return &types.GenerateResult{
		JPEG:         buf.Bytes(),
		ActualWidth:  bounds.Dx(),
		ActualHeight: bounds.Dy(),
		Steps:        out.Steps,
		Elapsed:      elapsed,
	}, nil
}
