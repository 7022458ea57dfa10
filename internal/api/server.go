// Package api exposes the HTTP interface for the citation service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/cache"
	"github.com/JakeFAU/scholar-cites/internal/logging"
	"github.com/JakeFAU/scholar-cites/internal/metrics"
	"github.com/JakeFAU/scholar-cites/internal/middleware"
	"github.com/JakeFAU/scholar-cites/internal/progress/sinks"
)

// CacheReader loads the citation cache for the read-only views.
// *cache.Store satisfies it.
type CacheReader interface {
	Load(ctx context.Context) (*cache.Cache, error)
}

// RunView exposes recorded refresh runs. *sinks.RunStore satisfies it.
type RunView interface {
	Latest() (sinks.RunRecord, bool)
	Recent(n int) []sinks.RunRecord
}

// Server wires HTTP handlers to the cache store and run history.
type Server struct {
	router chi.Router
	store  CacheReader
	runs   RunView
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. runs may be
// nil when no run history sink is attached.
func NewServer(store CacheReader, runs RunView, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		runs:   runs,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.getCache)
			r.Get("/{key}", s.getCacheEntry)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/latest", s.getLatestRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The cache file is created on demand, so there is no downstream to
	// probe; serving at all means ready.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
