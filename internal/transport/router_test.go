package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/dealerdesk/internal/config"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/model"
)

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "GET", "/ui/health", nil)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "GET", "/ui/ready", nil)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var body observability.ReadinessResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Checks["record_store"].Status != "ok" {
		t.Errorf("checks = %+v", body.Checks)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "GET", "/metrics", nil)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_metricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Metrics.Enabled = false
	r := NewRouter(Dependencies{Config: cfg})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewRouter_routesAreRegistered(t *testing.T) {
	s := newTestServer(t)

	// Unknown sessions and definitions resolve to 404 envelopes, never to
	// chi's plain 404/405.
	routes := []struct {
		method string
		path   string
		code   string
	}{
		{"GET", "/ui/tables/nope", model.ErrNotFound},
		{"POST", "/ui/tables/nope/views", model.ErrNotFound},
		{"GET", "/ui/views/v1", model.ErrSessionNotFound},
		{"DELETE", "/ui/views/v1", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/search", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/filter", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/sort", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/page", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/select", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/select-page", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/clear-selection", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/highlight", model.ErrSessionNotFound},
		{"POST", "/ui/views/v1/reload", model.ErrSessionNotFound},
		{"POST", "/ui/forms/nope/sessions", model.ErrNotFound},
		{"GET", "/ui/form-sessions/f1", model.ErrSessionNotFound},
		{"DELETE", "/ui/form-sessions/f1", model.ErrSessionNotFound},
		{"POST", "/ui/form-sessions/f1/values", model.ErrSessionNotFound},
		{"POST", "/ui/form-sessions/f1/toggle-option", model.ErrSessionNotFound},
		{"POST", "/ui/form-sessions/f1/file", model.ErrSessionNotFound},
		{"POST", "/ui/form-sessions/f1/reveal", model.ErrSessionNotFound},
		{"POST", "/ui/form-sessions/f1/submit", model.ErrSessionNotFound},
		{"POST", "/ui/form-sessions/f1/cancel", model.ErrSessionNotFound},
		{"GET", "/ui/lookups/nope", model.ErrNotFound},
	}

	for _, tc := range routes {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			expectError(t, s.do(t, tc.method, tc.path, nil), http.StatusNotFound, tc.code)
		})
	}
}

func TestNewRouter_recordsHTTPMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "GET", "/ui/tables/users", nil)

	got := testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/ui/tables/{tableId}", "200"))
	if got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

func TestNewRouter_rateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	s := newTestServerWithConfig(t, cfg)

	// The first request consumes the burst; health stays reachable.
	if w := s.do(t, "GET", "/ui/lookups/dealers", nil); w.Code != 200 {
		t.Fatalf("first status = %d", w.Code)
	}

	w := s.do(t, "GET", "/ui/lookups/dealers", nil)
	expectError(t, w, http.StatusTooManyRequests, model.ErrRateLimited)
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set")
	}
	if got := testutil.ToFloat64(s.metrics.RateLimitedTotal); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}

	if health := s.do(t, "GET", "/ui/health", nil); health.Code != 200 {
		t.Errorf("health status = %d, want 200", health.Code)
	}
}

// --- Middleware tests ---

func TestRecovery_catchesPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 after panic", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Errorf("logs = %v", logs.All())
	}
}

func TestRecovery_passesThrough(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORS_preflight(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         3600,
	}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for preflight")
	}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestCORS_disallowedOrigin(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET"},
	}

	called := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should still be called for non-preflight")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin should be empty for disallowed origin, got %q", got)
	}
}

func TestRequestID_generated(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CorrelationIDFrom(r.Context()) == "" {
			t.Error("correlation ID should be generated")
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("response should have X-Correlation-Id header")
	}
}

func TestRequestID_buildsRequestContext(t *testing.T) {
	var got *model.RequestContext
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-Id", "test-corr-123")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("Accept-Language", "sw-KE")
	req.Header.Set("User-Agent", "console/1.0")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got == nil {
		t.Fatal("RequestContext should be in context")
	}
	if got.CorrelationID != "test-corr-123" {
		t.Errorf("CorrelationID = %q", got.CorrelationID)
	}
	if got.ClientIP != "203.0.113.7" {
		t.Errorf("ClientIP = %q", got.ClientIP)
	}
	if got.Locale != "sw-KE" || got.UserAgent != "console/1.0" {
		t.Errorf("Locale = %q UserAgent = %q", got.Locale, got.UserAgent)
	}
	if h := w.Header().Get("X-Correlation-Id"); h != "test-corr-123" {
		t.Errorf("response X-Correlation-Id = %q, want test-corr-123", h)
	}
}

func TestClientIP_remoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	if got := clientIP(req); got != "198.51.100.4" {
		t.Errorf("clientIP = %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	expected := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "0",
		"Cache-Control":             "no-store",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}

	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRateLimit_disabled(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	for range 5 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		if w.Code != 200 {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}
}

func TestRateLimit_perClient(t *testing.T) {
	handler := RateLimit(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
		}))

	send := func(ip string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("203.0.113.1"); code != 200 {
		t.Errorf("first = %d, want 200", code)
	}
	if code := send("203.0.113.1"); code != 429 {
		t.Errorf("second = %d, want 429", code)
	}
	if code := send("203.0.113.2"); code != 200 {
		t.Errorf("other client = %d, want 200", code)
	}
}

func TestHandlerTimeout_setsDeadline(t *testing.T) {
	handler := HandlerTimeout(5 * time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("context should have a deadline")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestHandlerTimeout_zeroNoDeadline(t *testing.T) {
	handler := HandlerTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); ok {
			t.Error("context should not have a deadline")
		}
		w.WriteHeader(200)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestRequestLogging_capturesStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestID(RequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.LoggerFrom(r.Context(), nil) == nil {
			t.Error("request logger should be in context")
		}
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Correlation-Id", "corr-9")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("request logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v", fields["status"])
	}
	if fields["correlation_id"] != "corr-9" {
		t.Errorf("correlation_id field = %v", fields["correlation_id"])
	}
}

func TestSecurityHeaders_onHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "GET", "/ui/health", nil)

	// Security headers should be present even on health endpoint.
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("health should still get X-Correlation-Id")
	}
}
