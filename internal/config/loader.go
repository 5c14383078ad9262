package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"imaged/internal/manager"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	AuthToken string `json:"auth_token" yaml:"auth_token" toml:"auth_token"`

	// Pipeline selects the resource backend: "runner" (external diffusion
	// runner over HTTP) or "stub" (in-process, for smoke deployments).
	Pipeline     string `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
	RunnerURL    string `json:"runner_url" yaml:"runner_url" toml:"runner_url"`
	RunnerAPIKey string `json:"runner_api_key" yaml:"runner_api_key" toml:"runner_api_key"`
	ModelID      string `json:"model_id" yaml:"model_id" toml:"model_id"`
	CacheDir     string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`

	// Admission gate tuning.
	MaxConcurrent  int `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	MaxQueueDepth  int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds int `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`

	// HTTP surface tuning.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" toml:"requests_per_minute"`
	MaxBodyMB         int `json:"max_body_mb" yaml:"max_body_mb" toml:"max_body_mb"`

	// CORS (opt-in): non-empty origins enable the middleware.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`

	// Validation bounds; zero means package defaults.
	Limits manager.Limits `json:"limits" yaml:"limits" toml:"limits"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
