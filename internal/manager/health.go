package manager

import (
	"runtime"
	"time"

	"imaged/pkg/types"
)

// Health builds a point-in-time snapshot of lifecycle state and telemetry.
// It is non-blocking and never touches the admission gate, so it stays
// responsive while the gate is saturated with inference work.
func (m *Manager) Health() types.HealthResponse {
	m.mu.RLock()
	state := m.state
	stateErr := m.stateErr
	p := m.pipe
	m.mu.RUnlock()

	ready := state == StateReady && p != nil
	resp := types.HealthResponse{
		State:         string(state),
		ModelLoaded:   ready,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Error:         stateErr,
	}
	if ready {
		resp.Status = "healthy"
	} else {
		resp.Status = "unhealthy"
		if resp.Error == "" && state != StateFailed {
			resp.Error = "pipeline not initialized"
		}
	}

	if p != nil {
		d := p.Device()
		resp.GPUAvailable = d.Accelerator
		if d.Accelerator {
			resp.GPU = &types.GPUHealth{
				Name:    d.Name,
				UsedMB:  d.UsedMemMB,
				TotalMB: d.TotalMemMB,
			}
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	resp.Memory = types.MemoryHealth{
		AllocMB: int(ms.Alloc / (1 << 20)),
		SysMB:   int(ms.Sys / (1 << 20)),
	}
	return resp
}
