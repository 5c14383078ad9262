package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"imaged/internal/manager"
	"imaged/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerateResult, error)
	Health() types.HealthResponse
	Ready() bool
}

// GenerateDefaults fill multipart fields the client omitted.
type GenerateDefaults struct {
	GuidanceScale float64
	Steps         int
	Width         int
	Height        int
}

func (d GenerateDefaults) withFallbacks() GenerateDefaults {
	if d.GuidanceScale == 0 {
		d.GuidanceScale = 2.5
	}
	if d.Steps == 0 {
		d.Steps = 10
	}
	if d.Width == 0 {
		d.Width = 1024
	}
	if d.Height == 0 {
		d.Height = 1024
	}
	return d
}

// CORSOptions enables CORS when non-nil.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Options configures the mux. The zero value is usable in tests: no auth
// token (all /generate requests rejected 401), default body limit, no rate
// limit, background base context.
type Options struct {
	// AuthToken guards POST /generate.
	AuthToken string
	// MaxBodyBytes caps the multipart request body. Default 32 MiB.
	MaxBodyBytes int64
	// RequestsPerMinute rate-limits /generate per client IP. 0 disables.
	RequestsPerMinute int
	// BaseContext is joined with each request context so process shutdown
	// cancels in-flight work. Nil means context.Background().
	BaseContext context.Context
	// CORS enables cross-origin access when non-nil.
	CORS *CORSOptions
	// Defaults for omitted generation fields.
	Defaults GenerateDefaults
	Logger   zerolog.Logger
}

// NewMux builds the HTTP handler: liveness, health, metrics, and the
// authenticated generation endpoint.
func NewMux(svc Service, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	opts.Defaults = opts.Defaults.withFallbacks()
	logger := opts.Logger.With().Str("component", "httpapi").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(withCorrelationID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(requestLogger(logger))
	// Compression for JSON endpoints; image bodies pass through untouched.
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if opts.CORS != nil {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: opts.CORS.AllowedMethods,
			AllowedHeaders: opts.CORS.AllowedHeaders,
		}))
	}

	r.Get("/", rootHandler(svc))
	r.Get("/health", healthHandler(svc))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	r.Group(func(r chi.Router) {
		r.Use(requireBearer(opts.AuthToken))
		if opts.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RequestsPerMinute, time.Minute))
		}
		r.Post("/generate", generateHandler(svc, opts, logger))
	})

	return r
}

// rootHandler godoc
// @Summary  Liveness/info
// @Produce  json
// @Success  200 {object} types.RootResponse
// @Router   / [get]
func rootHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := svc.Ready()
		status := "initializing"
		if ready {
			status = "operational"
		}
		writeJSON(w, http.StatusOK, types.RootResponse{
			Message:     "imaged is running",
			Status:      status,
			ModelLoaded: ready,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// healthHandler godoc
// @Summary  Readiness and telemetry snapshot
// @Produce  json
// @Success  200 {object} types.HealthResponse
// @Failure  503 {object} types.HealthResponse
// @Router   /health [get]
func healthHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := svc.Health()
		code := http.StatusOK
		if snap.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, snap)
	}
}

// generateHandler godoc
// @Summary   Generate or transform an image
// @Accept    mpfd
// @Produce   jpeg
// @Param     prompt formData string true "Text prompt"
// @Param     guidance_scale formData number false "Guidance scale"
// @Param     num_inference_steps formData integer false "Inference steps"
// @Param     width formData integer false "Output width"
// @Param     height formData integer false "Output height"
// @Param     image formData file false "Optional input image"
// @Security  BearerAuth
// @Success   200 {file} binary
// @Failure   400 {object} types.ErrorResponse
// @Failure   401 {object} types.ErrorResponse
// @Failure   429 {object} types.ErrorResponse
// @Failure   500 {object} types.ErrorResponse
// @Failure   503 {object} types.ErrorResponse
// @Router    /generate [post]
func generateHandler(svc Service, opts Options, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)
		req, err := parseGenerateForm(r, opts.Defaults)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		req.CorrelationID = correlationID(r)

		ctx, cancel := joinContexts(opts.BaseContext, r.Context())
		defer cancel()

		start := time.Now()
		res, err := svc.Generate(ctx, req)
		if err != nil {
			// Client gone or process shutting down: nothing to write.
			if r.Context().Err() != nil || opts.BaseContext.Err() != nil {
				return
			}
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("admission")
			}
			logger.Warn().
				Str("request_id", req.CorrelationID).
				Int("status", status).
				Dur("dur", time.Since(start)).
				Err(err).
				Msg("generate failed")
			writeJSONError(w, status, manager.Kind(err), err.Error())
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Processing-Time", fmt.Sprintf("%.2f", res.Elapsed.Seconds()))
		w.Header().Set("X-Requested-Resolution", fmt.Sprintf("%dx%d", req.Width, req.Height))
		w.Header().Set("X-Actual-Resolution", fmt.Sprintf("%dx%d", res.ActualWidth, res.ActualHeight))
		w.Header().Set("X-Inference-Steps", strconv.Itoa(res.Steps))
		w.Header().Set("X-Guidance-Scale", fmt.Sprintf("%.1f", req.GuidanceScale))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.JPEG)
	}
}

// parseGenerateForm extracts and types the multipart fields, applying
// defaults for omitted values. Range checks live in the manager; only
// syntactic failures are rejected here.
func parseGenerateForm(r *http.Request, d GenerateDefaults) (types.GenerateRequest, error) {
	var req types.GenerateRequest
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return req, fmt.Errorf("invalid multipart form: %w", err)
	}
	req.Prompt = r.FormValue("prompt")

	var err error
	if req.GuidanceScale, err = formFloat(r, "guidance_scale", d.GuidanceScale); err != nil {
		return req, err
	}
	if req.Steps, err = formInt(r, "num_inference_steps", d.Steps); err != nil {
		return req, err
	}
	if req.Width, err = formInt(r, "width", d.Width); err != nil {
		return req, err
	}
	if req.Height, err = formInt(r, "height", d.Height); err != nil {
		return req, err
	}

	file, _, ferr := r.FormFile("image")
	if ferr == nil {
		defer file.Close()
		data, rerr := io.ReadAll(file)
		if rerr != nil {
			return req, fmt.Errorf("reading image part: %w", rerr)
		}
		req.ImageData = data
	} else if !errors.Is(ferr, http.ErrMissingFile) {
		return req, fmt.Errorf("image part: %w", ferr)
	}
	return req, nil
}

func formFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}

func formInt(r *http.Request, name string, def int) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// statusForError maps manager errors to HTTP status codes. Everything the
// manager can return is translated here; nothing propagates unhandled.
func statusForError(err error) int {
	switch {
	case manager.IsValidation(err), manager.IsInvalidImage(err):
		return http.StatusBadRequest
	case manager.IsNotReady(err):
		return http.StatusServiceUnavailable
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
