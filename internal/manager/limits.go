package manager

import (
	"strings"

	"imaged/pkg/types"
)

// Default validation bounds.
const (
	defaultGuidanceMin = 1.0
	defaultGuidanceMax = 20.0
	defaultStepsMin    = 1
	defaultStepsMax    = 100
	defaultDimMin      = 64
	defaultDimMax      = 2048
)

// Limits are the inclusive validation bounds for generation parameters.
type Limits struct {
	GuidanceMin float64 `json:"guidance_min" yaml:"guidance_min" toml:"guidance_min"`
	GuidanceMax float64 `json:"guidance_max" yaml:"guidance_max" toml:"guidance_max"`
	StepsMin    int     `json:"steps_min" yaml:"steps_min" toml:"steps_min"`
	StepsMax    int     `json:"steps_max" yaml:"steps_max" toml:"steps_max"`
	DimMin      int     `json:"dim_min" yaml:"dim_min" toml:"dim_min"`
	DimMax      int     `json:"dim_max" yaml:"dim_max" toml:"dim_max"`
}

func (l Limits) withDefaults() Limits {
	if l.GuidanceMin == 0 && l.GuidanceMax == 0 {
		l.GuidanceMin, l.GuidanceMax = defaultGuidanceMin, defaultGuidanceMax
	}
	if l.StepsMin == 0 && l.StepsMax == 0 {
		l.StepsMin, l.StepsMax = defaultStepsMin, defaultStepsMax
	}
	if l.DimMin == 0 && l.DimMax == 0 {
		l.DimMin, l.DimMax = defaultDimMin, defaultDimMax
	}
	return l
}

// validate checks shape and range of a request. It runs before the
// readiness check and before admission, so rejected requests never touch
// the gate or the pipeline.
func (l Limits) validate(req types.GenerateRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrValidation("prompt is required")
	}
	if req.GuidanceScale < l.GuidanceMin || req.GuidanceScale > l.GuidanceMax {
		return ErrValidation("guidance_scale must be between %g and %g", l.GuidanceMin, l.GuidanceMax)
	}
	if req.Steps < l.StepsMin || req.Steps > l.StepsMax {
		return ErrValidation("num_inference_steps must be between %d and %d", l.StepsMin, l.StepsMax)
	}
	if req.Width < l.DimMin || req.Width > l.DimMax {
		return ErrValidation("width must be between %d and %d", l.DimMin, l.DimMax)
	}
	if req.Height < l.DimMin || req.Height > l.DimMax {
		return ErrValidation("height must be between %d and %d", l.DimMin, l.DimMax)
	}
	return nil
}
