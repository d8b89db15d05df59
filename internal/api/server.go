// Package api exposes the sync, status and duplicate utilities over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/models"
	"github.com/Guizzs26/go-crm-sync/internal/reservation"
	"github.com/Guizzs26/go-crm-sync/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CompanyLister reads store companies for previews
type CompanyLister interface {
	FetchCompanies(ctx context.Context, f models.CompanyFilter) ([]models.SourceCompany, error)
}

// SyncRunner runs a guarded sync and reports the reservation state
type SyncRunner interface {
	Run(ctx context.Context, opts service.RunOptions) (service.Report, error)
	State() reservation.State
}

// DuplicateService finds and merges duplicate companies
type DuplicateService interface {
	FindEfficient(ctx context.Context) ([]models.DuplicateGroup, error)
	FindTargeted(ctx context.Context, batchSize int) ([]models.DuplicateGroup, error)
	Merge(ctx context.Context, req service.MergeRequest) (service.MergeResult, error)
	CleanupCRM(ctx context.Context, mergedCompanyIDs []int64, dryRun bool) (models.CleanupResult, error)
}

// Defaults applied when a request leaves a field out
type Defaults struct {
	DryRun   bool
	PageSize int
	// CompanyIDs is the sync filter used when a request names no companies
	CompanyIDs []int64
}

// ServerOption configures the router
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	allowedOrigins []string
}

// WithMiddlewares appends middleware after the built-in stack
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithAllowedOrigins replaces the CORS origin list (default "*")
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.allowedOrigins = origins
	}
}

// NewServer builds the router. Routes live under /api, /health and /metrics at the root.
func NewServer(companies CompanyLister, runner SyncRunner, dups DuplicateService, d Defaults, l *slog.Logger, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{allowedOrigins: []string{"*"}}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &handlers{
		companies:  companies,
		runner:     runner,
		duplicates: dups,
		defaults:   d,
		logger:     l.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/companies", h.listCompanies)
		r.Post("/sync", h.runSync)
		r.Get("/status", h.status)
		r.Get("/duplicates", h.findDuplicates)
		r.Post("/duplicates", h.mergeDuplicates)
		r.Post("/hubspot-cleanup", h.cleanupCRM)
	})

	return r
}

// LoggingMiddleware logs each request once it completes
func LoggingMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			l.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
