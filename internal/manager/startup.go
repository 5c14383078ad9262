package manager

import (
	"context"
	"fmt"
	"os"
	"time"

	"imaged/internal/common/fsutil"
	"imaged/internal/pipeline"
)

// Warm-up parameters: minimal dimensions and a single step so lazy
// compilation and first-allocation costs are paid before real traffic.
var warmupInput = pipeline.Input{
	Prompt:        "warmup",
	GuidanceScale: 1.0,
	Steps:         1,
	Width:         64,
	Height:        64,
}

// Start runs the one-time startup sequence: prepare the cache directory,
// load the pipeline, warm it up, then flip state to ready. It must be
// called exactly once; any failure leaves the manager permanently in
// StateFailed so health keeps reporting unhealthy and no generation request
// ever reaches a half-initialized pipeline.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		state := m.state
		m.mu.Unlock()
		return startupError{stage: "begin", err: fmt.Errorf("already started (state=%s)", state)}
	}
	m.state = StateLoading
	m.mu.Unlock()

	began := time.Now()
	m.log.Info().Str("cache_dir", m.cacheDir).Msg("startup: loading pipeline")

	if m.cacheDir != "" {
		dir, err := fsutil.ExpandHome(m.cacheDir)
		if err != nil {
			return m.fail("cache", err)
		}
		if !fsutil.PathExists(dir) {
			m.log.Info().Str("dir", dir).Msg("creating cache directory")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return m.fail("cache", err)
		}
	}

	if m.loader == nil {
		return m.fail("load", fmt.Errorf("no pipeline loader configured"))
	}
	p, err := m.loader.Load(ctx)
	if err != nil {
		return m.fail("load", err)
	}
	m.log.Info().Dur("elapsed", time.Since(began)).Msg("startup: pipeline loaded, warming up")

	if _, err := p.Generate(ctx, warmupInput); err != nil {
		_ = p.Close()
		return m.fail("warmup", err)
	}

	m.mu.Lock()
	m.pipe = p
	m.state = StateReady
	m.loadedAt = time.Now()
	m.mu.Unlock()

	m.log.Info().Dur("elapsed", time.Since(began)).Msg("startup: pipeline ready")
	return nil
}

// fail records a terminal startup failure and returns it as a startupError.
func (m *Manager) fail(stage string, err error) error {
	serr := startupError{stage: stage, err: err}
	m.mu.Lock()
	m.state = StateFailed
	m.stateErr = serr.Error()
	m.mu.Unlock()
	ev := m.log.Error().Err(err).Str("stage", stage)
	if m.hint != "" {
		ev = ev.Str("remediation", m.hint)
	}
	ev.Msg("startup failed; service will report unhealthy until restarted")
	return serr
}
