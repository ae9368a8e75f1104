// Package httpapi is the request façade (C5): it exposes the router
// kernel's operations over JSON/HTTP, following the teacher's
// internal/httpapi/routes.go pattern of one Dependencies bundle plus one
// MountRoutes function wiring chi middleware and handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/logging"
	"github.com/relaydeck/aifacade/internal/metrics"
	"github.com/relaydeck/aifacade/internal/router"
	"github.com/relaydeck/aifacade/internal/tracing"
)

// maxRequestBodySize bounds POST bodies to the façade (10 MB), matching the
// teacher's bodySizeLimit convention.
const maxRequestBodySize = 10 << 20

// requestTimeout is the overall deadline the façade imposes on a generate
// call; the router itself does not impose one (§5).
const requestTimeout = 60 * time.Second

// Dependencies bundles everything a handler needs. Router is authoritative
// for routing/accounting; History is the façade's own external journal,
// distinct from the router's internal one (§9 open question, resolved as
// two Store instances of the same generic type).
type Dependencies struct {
	Router  *router.Router
	History *journal.Store[journal.Document]
	Metrics *metrics.Registry
	Logger  *slog.Logger

	CORSOrigins []string
}

func bodySizeLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MountRoutes wires the façade's chi router: ambient middleware first, then
// the six /api/ai/* endpoints plus /health and /metrics.
func MountRoutes(r chi.Router, d Dependencies) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	logger := d.Logger

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(logger))
	r.Use(tracing.Middleware())
	r.Use(bodySizeLimit(maxRequestBodySize))

	origins := d.CORSOrigins
	if len(origins) == 0 {
		logger.Warn("AIFACADE_CORS_ORIGINS not set, defaulting to *")
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))

	r.Get("/health", HealthzHandler())
	r.Get("/healthz", HealthzHandler()) // container HEALTHCHECK probe, teacher's naming
	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api/ai", func(r chi.Router) {
		r.Post("/generate", GenerateHandler(d))
		r.Get("/status", StatusHandler(d))
		r.Get("/spend", SpendHandler(d))
		r.Post("/health", ProviderHealthHandler(d))
		r.Get("/history", HistoryHandler(d))
		r.Post("/rollover", RolloverHandler(d))
	})
}

// HealthzHandler answers the container liveness probe; it reports process
// liveness only, not provider health (that's POST /api/ai/health).
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
