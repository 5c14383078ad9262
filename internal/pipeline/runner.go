package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RunnerConfig configures the HTTP adapter to an external diffusion runner
// process.
type RunnerConfig struct {
	// BaseURL of the runner, e.g. http://127.0.0.1:9700.
	BaseURL string
	// APIKey sent as a bearer token when non-empty.
	APIKey string
	// ModelID requested from the runner at load time.
	ModelID string
	// ConnectTimeout bounds dialing; request deadlines come from the
	// caller's context.
	ConnectTimeout time.Duration
}

// runnerLoader implements Loader against a diffusion runner over HTTP.
// The runner owns the actual weights; Load asks it to bring the model up
// and snapshots device telemetry once it reports ready.
type runnerLoader struct {
	cfg    RunnerConfig
	client *http.Client
}

// NewRunnerLoader constructs a Loader backed by an external runner process.
func NewRunnerLoader(cfg RunnerConfig) Loader {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	// Timeout stays 0: loading and generation can run for minutes, all
	// requests carry context deadlines from the caller instead.
	cli := &http.Client{Transport: tr, Timeout: 0}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &runnerLoader{cfg: cfg, client: cli}
}

type runnerLoadRequest struct {
	Model string `json:"model,omitempty"`
}

type runnerInfoResponse struct {
	Ready  bool `json:"ready"`
	Device struct {
		Accelerator bool   `json:"accelerator"`
		Name        string `json:"name"`
		UsedMemMB   int    `json:"used_mem_mb"`
		TotalMemMB  int    `json:"total_mem_mb"`
	} `json:"device"`
}

func (l *runnerLoader) Load(ctx context.Context) (Pipeline, error) {
	body, _ := json.Marshal(runnerLoadRequest{Model: l.cfg.ModelID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/load", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	l.authorize(req)
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner load: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runner load: %s", readRunnerError(resp))
	}
	p := &runnerPipeline{cfg: l.cfg, client: l.client}
	info, err := p.fetchInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("runner info: %w", err)
	}
	if !info.Ready {
		return nil, fmt.Errorf("runner reports model %q not ready after load", l.cfg.ModelID)
	}
	p.setDevice(info)
	return p, nil
}

func (l *runnerLoader) authorize(req *http.Request) {
	if l.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}
}

// runnerPipeline is the Pipeline implementation over a live runner.
type runnerPipeline struct {
	cfg    RunnerConfig
	client *http.Client

	mu     sync.RWMutex
	device DeviceInfo
}

type runnerGenerateRequest struct {
	Prompt        string  `json:"prompt"`
	ImageB64      string  `json:"image_b64,omitempty"`
	GuidanceScale float64 `json:"guidance_scale"`
	Steps         int     `json:"num_inference_steps"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
}

func (p *runnerPipeline) Generate(ctx context.Context, in Input) (*Output, error) {
	greq := runnerGenerateRequest{
		Prompt:        in.Prompt,
		GuidanceScale: in.GuidanceScale,
		Steps:         in.Steps,
		Width:         in.Width,
		Height:        in.Height,
	}
	if in.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, in.Image); err != nil {
			return nil, fmt.Errorf("encode input image: %w", err)
		}
		greq.ImageB64 = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	body, err := json.Marshal(greq)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("runner generate: %s", readRunnerError(resp))
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode runner output: %w", err)
	}
	// Best-effort telemetry refresh while we are off the hot path for the
	// next health query. Failures are ignored.
	if info, err := p.fetchInfo(ctx); err == nil {
		p.setDevice(info)
	}
	return &Output{Image: img, Steps: in.Steps}, nil
}

// Device returns the last snapshot taken at load time or after a
// generation. It never calls the runner, keeping health queries
// non-blocking even while the runner is busy.
func (p *runnerPipeline) Device() DeviceInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.device
}

func (p *runnerPipeline) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *runnerPipeline) fetchInfo(ctx context.Context) (runnerInfoResponse, error) {
	var info runnerInfoResponse
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/info", nil)
	if err != nil {
		return info, err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return info, err
	}
	return info, nil
}

func (p *runnerPipeline) setDevice(info runnerInfoResponse) {
	p.mu.Lock()
	p.device = DeviceInfo{
		Accelerator: info.Device.Accelerator,
		Name:        info.Device.Name,
		UsedMemMB:   info.Device.UsedMemMB,
		TotalMemMB:  info.Device.TotalMemMB,
	}
	p.mu.Unlock()
}

// readRunnerError extracts a short error message from a non-200 runner
// response, preferring a JSON {"error": ...} body.
func readRunnerError(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &payload); err == nil && payload.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, payload.Error)
	}
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
}
