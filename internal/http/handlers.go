package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/circleci-coverage/internal/collector"
	"github.com/kjstillabower/circleci-coverage/internal/host"
	"github.com/kjstillabower/circleci-coverage/internal/lifecycle"
	"github.com/kjstillabower/circleci-coverage/internal/observability"
	"github.com/kjstillabower/circleci-coverage/internal/validation"
)

// maxPayloadBytes bounds one task payload. A record lists file paths only, so this is
// generous even for very large projects.
const maxPayloadBytes = 8 << 20

// Handler exposes a host.Registry over HTTP.
type Handler struct {
	registry  *host.Registry
	logger    *zap.Logger
	startTime time.Time

	completeMu  sync.Mutex
	completeErr error
}

// NewHandler returns a new Handler.
func NewHandler(registry *host.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  registry,
		logger:    logger,
		startTime: time.Now(),
	}
}

// PostTask handles POST /tasks/{name}. The body is passed to the task handler as is
// and the handler's acknowledgment is returned as JSON.
func (h *Handler) PostTask(w http.ResponseWriter, r *http.Request) {
	name, err := validation.ValidateTaskName(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_TASK", err.Error())
		return
	}
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "host is shutting down")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "task payload too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, r, http.StatusBadRequest, "INVALID_PAYLOAD", "task payload must be JSON")
		return
	}

	ack, err := h.registry.RunTask(name, body)
	switch {
	case errors.Is(err, host.ErrUnknownTask):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_TASK", "unknown task: "+name)
		return
	case errors.Is(err, host.ErrRunComplete):
		writeError(w, r, http.StatusConflict, "RUN_COMPLETE", "run already complete")
		return
	case err != nil:
		if logger := loggerFromRequest(r); logger != nil {
			logger.Debug("task rejected payload", zap.String("task", name), zap.Error(err))
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// GetExpose handles GET /expose.
func (h *Handler) GetExpose(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Exposed())
}

// PostRunComplete handles POST /run/complete. The after-run hooks fire on the first
// call only; their error is reported with 500 and later calls get 409.
func (h *Handler) PostRunComplete(w http.ResponseWriter, r *http.Request) {
	h.completeMu.Lock()
	err := h.registry.Complete()
	if !errors.Is(err, host.ErrRunComplete) {
		h.completeErr = err
	}
	h.completeMu.Unlock()

	switch {
	case errors.Is(err, host.ErrRunComplete):
		writeError(w, r, http.StatusConflict, "RUN_COMPLETE", "run already complete")
		return
	case err != nil:
		h.logger.Error("after-run hooks failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "WRITE_FAILED", err.Error())
		return
	}
	lifecycle.Advance(lifecycle.Complete)
	h.logger.Info("run complete", zap.Duration("uptime", time.Since(h.startTime)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// CompleteErr returns the error from the after-run hooks, if they have run.
func (h *Handler) CompleteErr() error {
	h.completeMu.Lock()
	defer h.completeMu.Unlock()
	return h.completeErr
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	phase := lifecycle.Current()
	if h.registry.IsComplete() && phase == lifecycle.Collecting {
		phase = lifecycle.Complete
	}
	statusCode := http.StatusOK
	if phase == lifecycle.ShuttingDown {
		statusCode = http.StatusServiceUnavailable
	}
	status := "healthy"
	if phase != lifecycle.Collecting {
		status = phase.String()
	}
	resp := map[string]interface{}{
		"status":    status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"enabled":   collector.Flag(h.registry.Exposed()),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, statusCode, resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationIDFromRequest(r),
		},
	})
}
