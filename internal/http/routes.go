package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/circleci-coverage/internal/observability"
)

// RouterConfig holds the knobs for NewRouter.
type RouterConfig struct {
	// Limiter throttles task ingestion; nil disables it.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires h behind the standard middleware chain.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	if cfg.RequestTimeout > 0 {
		router.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/expose", h.GetExpose).Methods(http.MethodGet)
	router.HandleFunc("/run/complete", h.PostRunComplete).Methods(http.MethodPost)
	router.Handle("/metrics", observability.MetricsHandler())

	tasks := router.PathPrefix("/tasks").Subrouter()
	tasks.Use(RateLimitMiddleware(cfg.Limiter))
	tasks.HandleFunc("/{name}", h.PostTask).Methods(http.MethodPost)
	return router
}
