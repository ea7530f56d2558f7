// Package api exposes the HTTP interface for the aggregation service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/aggregator"
	"github.com/JakeFAU/wellness-aggregator/internal/coach"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
	"github.com/JakeFAU/wellness-aggregator/internal/metrics"
)

// Aggregator merges adapter results for one query.
type Aggregator interface {
	Aggregate(ctx context.Context, q feed.Query, adapters []feed.Adapter) aggregator.Result
}

// Coach answers free-text questions.
type Coach interface {
	Answer(ctx context.Context, question string) (coach.Answer, error)
}

// Config controls server-wide behavior.
type Config struct {
	RequestTimeout time.Duration
	// CoachBudget bounds POST /coach so a degraded answer is written before
	// RequestTimeout expires. Defaults to three quarters of RequestTimeout.
	CoachBudget time.Duration
}

const defaultRequestTimeout = 90 * time.Second

// Server wires HTTP handlers to the aggregator and coach.
type Server struct {
	router chi.Router
	agg    Aggregator
	events []feed.Adapter
	places []feed.Adapter
	coach  Coach
	logger *zap.Logger

	coachBudget time.Duration
}

// NewServer constructs a Server with middleware and routes. events and places
// are the adapters queried by the corresponding endpoints, in result order.
func NewServer(
	agg Aggregator,
	events []feed.Adapter,
	places []feed.Adapter,
	coach Coach,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.CoachBudget <= 0 || cfg.CoachBudget >= cfg.RequestTimeout {
		cfg.CoachBudget = cfg.RequestTimeout * 3 / 4
	}
	s := &Server{
		agg:    agg,
		events: events,
		places: places,
		coach:  coach,
		logger: logger,

		coachBudget: cfg.CoachBudget,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/events", func(r chi.Router) {
		r.Use(corsMiddleware(http.MethodGet, http.MethodOptions))
		r.Get("/", s.getEvents)
	})
	r.Route("/places", func(r chi.Router) {
		r.Use(corsMiddleware(http.MethodGet, http.MethodOptions))
		r.Get("/", s.getPlaces)
	})
	r.Route("/coach", func(r chi.Router) {
		r.Use(corsMiddleware(http.MethodPost, http.MethodOptions))
		r.Post("/", s.postCoach)
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
	// Stateless: ready as soon as the router is built.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeInternalError is the envelope for unexpected faults.
func writeInternalError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   "internal server error",
		"message": msg,
	})
}
