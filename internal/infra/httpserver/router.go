package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	appanalysis "github.com/bryanwahyu/csvanalyst/internal/application/analysis"
	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
	"github.com/bryanwahyu/csvanalyst/internal/middleware"
)

// Options configures the router's middleware stack and output layout.
type Options struct {
	APIKeys     map[string]string
	RateLimiter *middleware.RateLimiter
	CORSOrigins []string
	OutputDir   string
	Checkers    map[string]middleware.HealthChecker
}

// Router serves the API and owns the analyses it started in the background.
type Router struct {
	http.Handler

	svc       *appanalysis.Service
	outputDir string

	runCtx     context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup
}

func NewRouter(svc *appanalysis.Service, opts Options) *Router {
	r := &Router{svc: svc, outputDir: opts.OutputDir}
	if r.outputDir == "" {
		r.outputDir = "output"
	}
	r.runCtx, r.cancelRuns = context.WithCancel(context.Background())

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireTenantMatch)
		rt.Post("/analyses", r.wrap(r.handleCreate))
		rt.Get("/analyses", r.wrap(r.handleList))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
	})

	r.Handler = mux
	return r
}

// Shutdown cancels background analyses and waits until each has recorded
// its final state, or until ctx is done.
func (r *Router) Shutdown(ctx context.Context) error {
	r.cancelRuns()
	done := make(chan struct{})
	go func() {
		r.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background analyses: %w", ctx.Err())
	}
}

// badRequest menandai error input dari client
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br badRequest
			switch {
			case errors.As(err, &br):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
			default:
				slog.Error("request failed", "path", req.URL.Path, "error", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// POST /v1/{tenant}/analyses
// Body: {"csv_path": "...", "prompt": "...", "stream": false}
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	var body struct {
		CSVPath string `json:"csv_path"`
		Prompt  string `json:"prompt"`
		Stream  bool   `json:"stream"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{fmt.Errorf("invalid JSON body: %w", err)}
	}
	if err := middleware.ValidateCSVPath(body.CSVPath); err != nil {
		return badRequest{err}
	}
	userPrompt, err := middleware.ValidatePrompt(body.Prompt)
	if err != nil {
		return badRequest{err}
	}
	if err := appanalysis.ValidateCSVPath(body.CSVPath); err != nil {
		return badRequest{err}
	}

	id := domain.ID(uuid.New().String())
	cmd := appanalysis.AnalyzeCommand{
		ID:         id,
		TenantID:   tenant,
		CSVPath:    body.CSVPath,
		Prompt:     userPrompt,
		OutputPath: filepath.Join(r.outputDir, tenant, string(id), "analysis_report.txt"),
		Streaming:  body.Stream,
		Verbose:    true,
	}

	// Jalankan di background; dibatalkan saat Shutdown supaya status tercatat failed
	r.runs.Add(1)
	go func() {
		defer r.runs.Done()
		middleware.AnalysisStarted()
		result, err := r.svc.Analyze(r.runCtx, cmd)
		middleware.AnalysisFinished(err != nil)
		if err != nil {
			slog.Error("background analysis failed", "tenant", tenant, "id", id, "error", err)
			return
		}
		slog.Info("analysis finished", "tenant", tenant, "id", id, "generated", result.Generated, "report_url", result.ReportURL)
	}()

	resp := map[string]any{
		"id":       id,
		"status":   "queued",
		"tenant":   tenant,
		"csv_path": body.CSVPath,
		"message":  "analysis started in background",
		"queuedAt": time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(resp)
}

// GET /v1/{tenant}/analyses?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.svc.List(req.Context(), tenant, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{tenant}/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return badRequest{err}
	}

	a, err := r.svc.Get(req.Context(), tenant, domain.ID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(a)
}
