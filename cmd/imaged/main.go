package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imaged/internal/config"
	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/internal/pipeline"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envOr("IMAGED_ADDR", ":8000"), "HTTP listen address, e.g. :8000")
	configPath := flag.String("config", os.Getenv("IMAGED_CONFIG"), "Optional config file (.yaml/.json/.toml)")
	authToken := flag.String("auth-token", os.Getenv("IMAGED_API_TOKEN"), "Bearer token required on /generate")
	pipelineKind := flag.String("pipeline", envOr("IMAGED_PIPELINE", "runner"), "Pipeline backend: runner or stub")
	runnerURL := flag.String("runner-url", envOr("IMAGED_RUNNER_URL", "http://127.0.0.1:9700"), "Base URL of the diffusion runner")
	runnerAPIKey := flag.String("runner-api-key", os.Getenv("IMAGED_RUNNER_API_KEY"), "Bearer token for the runner, if any")
	modelID := flag.String("model", os.Getenv("IMAGED_MODEL"), "Model id requested from the runner")
	cacheDir := flag.String("cache-dir", envOr("IMAGED_CACHE_DIR", "~/.cache/imaged"), "Weights/artifact cache directory, created at startup")
	maxConcurrent := flag.Int("max-concurrent", 1, "Admission gate capacity (concurrent generations)")
	maxQueueDepth := flag.Int("max-queue-depth", 32, "Max requests inside the gate (waiting + executing)")
	maxWait := flag.Duration("max-wait", 0, "Max admission wait; 0 queues until client disconnect")
	rateLimitRPM := flag.Int("rate-limit-rpm", 0, "Per-IP requests/minute on /generate (0 disables)")
	maxBodyMB := flag.Int("max-body-mb", 32, "Max request body size in MB")
	corsOrigins := flag.String("cors-origins", os.Getenv("IMAGED_CORS_ORIGINS"), "Comma-separated allowed CORS origins (empty disables CORS)")
	corsMethods := flag.String("cors-methods", "GET,POST", "Comma-separated allowed CORS methods")
	corsHeaders := flag.String("cors-headers", "Accept,Authorization,Content-Type,X-Request-ID", "Comma-separated allowed CORS request headers")
	logLevel := flag.String("log-level", envOr("IMAGED_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	exitOnStartupFailure := flag.Bool("exit-on-startup-failure", false, "Exit instead of serving 503 health when startup fails")
	flag.Parse()

	logger := newLogger(*logLevel)

	// A config file fills anything the flags left at defaults; explicit
	// flags win.
	var limits manager.Limits
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		applyConfig(cfg, addr, authToken, pipelineKind, runnerURL, runnerAPIKey, modelID, cacheDir,
			maxConcurrent, maxQueueDepth, maxWait, rateLimitRPM, maxBodyMB,
			corsOrigins, corsMethods, corsHeaders)
		limits = cfg.Limits
	}

	if *authToken == "" {
		logger.Fatal().Msg("auth token must be set (IMAGED_API_TOKEN, -auth-token or config auth_token)")
	}

	var loader pipeline.Loader
	switch *pipelineKind {
	case "stub":
		loader = pipeline.NewStub()
	case "runner":
		loader = pipeline.NewRunnerLoader(pipeline.RunnerConfig{
			BaseURL: *runnerURL,
			APIKey:  *runnerAPIKey,
			ModelID: *modelID,
		})
	default:
		logger.Fatal().Str("pipeline", *pipelineKind).Msg("unknown pipeline backend")
	}

	mgr := manager.New(manager.Config{
		Loader:          loader,
		MaxConcurrent:   *maxConcurrent,
		MaxQueueDepth:   *maxQueueDepth,
		MaxWait:         *maxWait,
		Limits:          limits,
		CacheDir:        *cacheDir,
		RemediationHint: "check runner availability and model license acceptance, then restart",
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var corsOpts *httpapi.CORSOptions
	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		corsOpts = &httpapi.CORSOptions{
			AllowedOrigins: origins,
			AllowedMethods: splitCSV(*corsMethods),
			AllowedHeaders: splitCSV(*corsHeaders),
		}
	}

	mux := httpapi.NewMux(mgr, httpapi.Options{
		AuthToken:         *authToken,
		MaxBodyBytes:      int64(*maxBodyMB) << 20,
		RequestsPerMinute: *rateLimitRPM,
		BaseContext:       ctx,
		CORS:              corsOpts,
		Logger:            logger,
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mgr.Start(ctx); err != nil {
			if *exitOnStartupFailure {
				return err
			}
			// Stay up in failed state: /health keeps answering 503 so the
			// orchestrator can see the difference between busy and down.
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", *addr).Str("pipeline", *pipelineKind).Msg("imaged listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		_ = mgr.Close()
		logger.Fatal().Err(err).Msg("imaged exited with error")
	}
	_ = mgr.Close()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).Level(lvl).With().
		Timestamp().
		Str("service", "imaged").
		Logger()
}

// applyConfig copies file values into flags the user did not set explicitly.
func applyConfig(cfg config.Config, addr, authToken, pipelineKind, runnerURL, runnerAPIKey, modelID, cacheDir *string,
	maxConcurrent, maxQueueDepth *int, maxWait *time.Duration, rateLimitRPM, maxBodyMB *int,
	corsOrigins, corsMethods, corsHeaders *string) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["addr"] && cfg.Addr != "" {
		*addr = cfg.Addr
	}
	if !set["auth-token"] && cfg.AuthToken != "" {
		*authToken = cfg.AuthToken
	}
	if !set["pipeline"] && cfg.Pipeline != "" {
		*pipelineKind = cfg.Pipeline
	}
	if !set["runner-url"] && cfg.RunnerURL != "" {
		*runnerURL = cfg.RunnerURL
	}
	if !set["runner-api-key"] && cfg.RunnerAPIKey != "" {
		*runnerAPIKey = cfg.RunnerAPIKey
	}
	if !set["model"] && cfg.ModelID != "" {
		*modelID = cfg.ModelID
	}
	if !set["cache-dir"] && cfg.CacheDir != "" {
		*cacheDir = cfg.CacheDir
	}
	if !set["max-concurrent"] && cfg.MaxConcurrent > 0 {
		*maxConcurrent = cfg.MaxConcurrent
	}
	if !set["max-queue-depth"] && cfg.MaxQueueDepth > 0 {
		*maxQueueDepth = cfg.MaxQueueDepth
	}
	if !set["max-wait"] && cfg.MaxWaitSeconds > 0 {
		*maxWait = time.Duration(cfg.MaxWaitSeconds) * time.Second
	}
	if !set["rate-limit-rpm"] && cfg.RequestsPerMinute > 0 {
		*rateLimitRPM = cfg.RequestsPerMinute
	}
	if !set["max-body-mb"] && cfg.MaxBodyMB > 0 {
		*maxBodyMB = cfg.MaxBodyMB
	}
	if !set["cors-origins"] && len(cfg.CORSOrigins) > 0 {
		*corsOrigins = strings.Join(cfg.CORSOrigins, ",")
	}
	if !set["cors-methods"] && len(cfg.CORSMethods) > 0 {
		*corsMethods = strings.Join(cfg.CORSMethods, ",")
	}
	if !set["cors-headers"] && len(cfg.CORSHeaders) > 0 {
		*corsHeaders = strings.Join(cfg.CORSHeaders, ",")
	}
}

// splitCSV turns a comma-separated flag value into a clean slice.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
