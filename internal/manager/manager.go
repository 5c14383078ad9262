package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/pipeline"
)

// State represents the lifecycle state of the pipeline resource.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxConcurrent = 1
	defaultMaxQueueDepth = 32
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Loader brings up the pipeline during Start.
	Loader pipeline.Loader
	// MaxConcurrent is the admission gate capacity N.
	MaxConcurrent int
	// MaxQueueDepth bounds waiting plus executing requests inside the gate.
	MaxQueueDepth int
	// MaxWait bounds the admission wait; 0 means callers queue until their
	// context is canceled.
	MaxWait time.Duration
	// Limits are the request validation bounds; zero fields get defaults.
	Limits Limits
	// CacheDir is created before loading so the runtime can place weights
	// and compiled artifacts there. Empty skips the step.
	CacheDir string
	// RemediationHint is appended to the startup failure log, e.g. a
	// model-license acceptance URL.
	RemediationHint string
	Logger          zerolog.Logger
}

// Manager owns the pipeline lifecycle: it sequences startup, gates
// admission, drives each generation request, and reports health. All state
// transitions happen inside Start; everything else only reads state.
type Manager struct {
	mu       sync.RWMutex
	state    State
	stateErr string
	pipe     pipeline.Pipeline
	loadedAt time.Time

	loader    pipeline.Loader
	gate      *Gate
	limits    Limits
	cacheDir  string
	hint      string
	log       zerolog.Logger
	startTime time.Time
}

// New constructs a Manager. Start must be called before any generation
// traffic is admitted.
func New(cfg Config) *Manager {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = defaultMaxConcurrent
	}
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	return &Manager{
		state:     StateUninitialized,
		loader:    cfg.Loader,
		gate:      NewGate(maxConc, depth, cfg.MaxWait),
		limits:    cfg.Limits.withDefaults(),
		cacheDir:  cfg.CacheDir,
		hint:      cfg.RemediationHint,
		log:       cfg.Logger.With().Str("component", "manager").Logger(),
		startTime: time.Now(),
	}
}

// Ready reports whether the pipeline is serving.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady && m.pipe != nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Close releases the pipeline if one was loaded.
func (m *Manager) Close() error {
	m.mu.Lock()
	p := m.pipe
	m.pipe = nil
	m.mu.Unlock()
	if p != nil {
		return p.Close()
	}
	return nil
}
