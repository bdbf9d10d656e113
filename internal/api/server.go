package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-search-crawler/internal/ranking"
)

const (
	defaultRequestTimeout = 60 * time.Second
	readyTimeout          = 2 * time.Second
	internalErrorMessage  = "Internal server error"
)

// Searcher ranks documents for a free-text query.
type Searcher interface {
	Search(ctx context.Context, q string) (ranking.Response, error)
	Normalize(q string) []string
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the HTTP surface.
type Config struct {
	// RequestTimeout bounds every handler. Zero uses 60s.
	RequestTimeout time.Duration
	// CacheTTL keeps query responses keyed by normalized query. Zero disables caching.
	CacheTTL time.Duration
	// AllowedOrigin is echoed in Access-Control-Allow-Origin. Empty means "*".
	AllowedOrigin string
}

// Server wires HTTP handlers to the ranking engine.
type Server struct {
	router   chi.Router
	searcher Searcher
	ready    Pinger
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(searcher Searcher, ready Pinger, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		searcher: searcher,
		ready:    ready,
		logger:   logger,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(cfg.AllowedOrigin))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/health", s.health)
	r.Get("/healthz", s.health)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.postQuery)
		r.Get("/query", s.getQuery)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queryRequest struct {
	Query *string `json:"query"`
}

func (s *Server) postQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == nil {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.runQuery(w, r, *req.Query)
}

func (s *Server) getQuery(w http.ResponseWriter, r *http.Request) {
	values, ok := r.URL.Query()["q"]
	if !ok {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.runQuery(w, r, values[0])
}

func (s *Server) runQuery(w http.ResponseWriter, r *http.Request, q string) {
	start := time.Now()
	key := strings.Join(s.searcher.Normalize(q), " ")
	if s.cache != nil && key != "" {
		if cached, ok := s.cache.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			metrics.ObserveQuery("cached", time.Since(start))
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	resp, err := s.searcher.Search(r.Context(), q)
	if err != nil {
		s.logger.Error("query failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("query", q),
			zap.Error(err))
		metrics.ObserveQuery("error", time.Since(start))
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}
	if s.cache != nil && key != "" {
		s.cache.SetDefault(key, resp)
	}
	metrics.ObserveQuery("ok", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
