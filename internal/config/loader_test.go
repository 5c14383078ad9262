package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "imaged.yaml", `
addr: ":9000"
auth_token: topsecret
pipeline: runner
runner_url: http://127.0.0.1:9700
model_id: flux-kontext
max_concurrent: 2
max_queue_depth: 16
cors_origins:
  - https://app.example
  - https://other.example
limits:
  guidance_min: 1.5
  guidance_max: 10.0
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.AuthToken != "topsecret" || cfg.ModelID != "flux-kontext" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.MaxConcurrent != 2 || cfg.MaxQueueDepth != 16 {
		t.Fatalf("gate cfg=%+v", cfg)
	}
	if cfg.Limits.GuidanceMin != 1.5 || cfg.Limits.GuidanceMax != 10.0 {
		t.Fatalf("limits=%+v", cfg.Limits)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://app.example" {
		t.Fatalf("cors origins=%v", cfg.CORSOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "imaged.json", `{"addr": ":9001", "pipeline": "stub", "requests_per_minute": 30}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9001" || cfg.Pipeline != "stub" || cfg.RequestsPerMinute != 30 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "imaged.toml", "addr = \":9002\"\nmax_body_mb = 64\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9002" || cfg.MaxBodyMB != 64 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeFile(t, "imaged.ini", "addr=:9003")
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	p := writeFile(t, "bad.yaml", "addr: [unclosed")
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}
