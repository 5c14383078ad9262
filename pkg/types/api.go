package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Human-readable error message.
	// example: width must be between 64 and 2048
	Error string `json:"error" example:"width must be between 64 and 2048"`
	// Stable machine-readable error kind.
	// example: validation_error
	Kind string `json:"kind" example:"validation_error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// RootResponse is returned by GET / (liveness/info).
type RootResponse struct {
	// Service banner.
	// example: imaged is running
	Message string `json:"message" example:"imaged is running"`
	// operational once the pipeline is loaded, initializing before.
	// example: operational
	Status string `json:"status" example:"operational"`
	// Whether the pipeline finished loading and warm-up.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Server time, RFC3339.
	Timestamp string `json:"timestamp"`
}

// GPUHealth describes the accelerator backing the pipeline, when one exists.
type GPUHealth struct {
	// Device name as reported by the runner.
	// example: NVIDIA A40
	Name string `json:"name" example:"NVIDIA A40"`
	// Device memory currently in use, MB.
	// example: 18432
	UsedMB int `json:"used_mb" example:"18432"`
	// Total device memory, MB.
	// example: 46068
	TotalMB int `json:"total_mb" example:"46068"`
}

// MemoryHealth is coarse process memory telemetry.
type MemoryHealth struct {
	// Heap in use, MB.
	// example: 142
	AllocMB int `json:"alloc_mb" example:"142"`
	// Memory obtained from the OS, MB.
	// example: 512
	SysMB int `json:"sys_mb" example:"512"`
}

// HealthResponse is returned by GET /health. Recomputed on every call,
// never cached.
type HealthResponse struct {
	// healthy when the pipeline is ready, unhealthy otherwise.
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// Lifecycle state: uninitialized, loading, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Whether the pipeline finished loading and warm-up.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Whether a hardware accelerator is available to the pipeline.
	// example: true
	GPUAvailable bool `json:"gpu_available" example:"true"`
	// Accelerator telemetry, present when one is available.
	GPU *GPUHealth `json:"gpu,omitempty"`
	// Process memory telemetry.
	Memory MemoryHealth `json:"memory"`
	// Seconds since process start.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time, RFC3339.
	Timestamp string `json:"timestamp"`
	// Last startup error when state is failed.
	Error string `json:"error,omitempty"`
}
