package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/circleci-coverage/internal/host"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	router, _ := newTestRouter(t, host.NewRegistry())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	router, _ := newTestRouter(t, host.NewRegistry())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestMiddleware_LoggerInContext(t *testing.T) {
	var sawLogger bool
	var corrID string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		sawLogger = loggerFromRequest(r) != nil
		corrID = correlationIDFromRequest(r)
	})

	req := httptest.NewRequest("GET", "/x", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if !sawLogger {
		t.Error("request logger missing from context")
	}
	if corrID == "" {
		t.Error("correlation id missing from context")
	}
}

func TestRateLimitMiddleware_Denies(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/tasks/{name}", func(w http.ResponseWriter, r *http.Request) {})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("POST", "/tasks/t", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("POST", "/tasks/t", nil))

	if first.Code != http.StatusOK {
		t.Errorf("first status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
}

func TestRateLimitMiddleware_NilPassesThrough(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	RateLimitMiddleware(nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/tasks/t", nil))
	if !called {
		t.Error("nil limiter should pass through")
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})
	TimeoutMiddleware(time.Second)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

// TestMetricsMiddleware_TracksInFlight verifies that a request is counted while it is
// being served and released afterwards.
func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var during int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
		w.WriteHeader(http.StatusAccepted)
	})
	before := InFlightCount()

	MetricsMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/tasks/t", nil))

	if during != before+1 {
		t.Errorf("in-flight during request = %d, want %d", during, before+1)
	}
	if got := InFlightCount(); got != before {
		t.Errorf("in-flight after request = %d, want %d", got, before)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := WaitForInFlight(ctx, time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() = %v", err)
	}
}

func TestGetRoute(t *testing.T) {
	tests := map[string]string{
		"/tasks/circleci:coverage:collect": "/tasks/{name}",
		"/expose":                          "/expose",
		"/run/complete":                    "/run/complete",
		"/health":                          "/health",
		"/metrics":                         "/metrics",
		"/random/path":                     "other",
	}
	for path, want := range tests {
		req := httptest.NewRequest("GET", path, nil)
		if got := getRoute(req); got != want {
			t.Errorf("getRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestStatusCodeString(t *testing.T) {
	if got := statusCodeString(404); got != "4xx" {
		t.Errorf("statusCodeString(404) = %q, want 4xx", got)
	}
}
