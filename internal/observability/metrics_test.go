package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"dealerdesk_http_requests_total",
		"dealerdesk_http_request_duration_seconds",
		"dealerdesk_http_request_size_bytes",
		"dealerdesk_http_response_size_bytes",
		"dealerdesk_http_rate_limited_total",
		"dealerdesk_table_views_opened_total",
		"dealerdesk_table_render_duration_seconds",
		"dealerdesk_table_selection_changes_total",
		"dealerdesk_form_sessions_opened_total",
		"dealerdesk_form_submissions_total",
		"dealerdesk_form_submit_duration_seconds",
		"dealerdesk_form_validation_failures_total",
		"dealerdesk_active_sessions",
		"dealerdesk_store_operations_total",
		"dealerdesk_store_duration_seconds",
		"dealerdesk_events_published_total",
		"dealerdesk_lookup_cache_hits_total",
		"dealerdesk_lookup_cache_misses_total",
		"dealerdesk_definition_reload_total",
		"dealerdesk_definitions_loaded",
	}

	// Record a value for each metric so they appear in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordRateLimited()
	m.RecordTableViewOpened("dealerships")
	m.RecordTableRender("dealerships", time.Millisecond)
	m.RecordSelectionChange("dealerships")
	m.RecordFormSessionOpened("dealership-form", "create")
	m.RecordFormSubmission("dealership-form", "saved", time.Millisecond)
	m.RecordFormValidationFailure("dealership-form", "name")
	m.SetActiveSessions("table", 2)
	m.RecordStoreOperation("put", "success", time.Millisecond)
	m.RecordEventPublished("record.created", "success")
	m.RecordLookupCacheHit("lu-1")
	m.RecordLookupCacheMiss("lu-1")
	m.RecordDefinitionReload("success")
	m.SetDefinitionsLoaded(5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/ui/tables/{tableId}", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/ui/tables/{tableId}", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("POST", "/ui/form-sessions/{sessionId}/submit", 500, 200*time.Millisecond, 512, 256)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/tables/{tableId}", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/ui/form-sessions/{sessionId}/submit", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordTableMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTableViewOpened("quotes")
	m.RecordTableViewOpened("quotes")
	m.RecordSelectionChange("quotes")
	m.RecordTableRender("quotes", 2*time.Millisecond)

	if got := testutil.ToFloat64(m.TableViewsOpenedTotal.WithLabelValues("quotes")); got != 2 {
		t.Errorf("views opened = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SelectionChangesTotal.WithLabelValues("quotes")); got != 1 {
		t.Errorf("selection changes = %v, want 1", got)
	}
	if testutil.CollectAndCount(m.TableRenderDuration) == 0 {
		t.Error("expected render duration observations")
	}
}

func TestRecordFormSubmission(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordFormSubmission("user-form", "saved", 10*time.Millisecond)
	m.RecordFormSubmission("user-form", "invalid", time.Millisecond)
	m.RecordFormSubmission("user-form", "invalid", time.Millisecond)

	if got := testutil.ToFloat64(m.FormSubmissionsTotal.WithLabelValues("user-form", "saved")); got != 1 {
		t.Errorf("saved = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FormSubmissionsTotal.WithLabelValues("user-form", "invalid")); got != 2 {
		t.Errorf("invalid = %v, want 2", got)
	}
}

func TestRecordFormValidationFailure(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.RecordFormValidationFailure("user-form", "email")

	if got := testutil.ToFloat64(m.FormValidationFailures.WithLabelValues("user-form", "email")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestSetActiveSessions(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.SetActiveSessions("form", 3)
	m.SetActiveSessions("form", 1)

	if got := testutil.ToFloat64(m.ActiveSessions.WithLabelValues("form")); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
}

func TestRecordStoreAndEvents(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.RecordStoreOperation("list", "success", time.Millisecond)
	m.RecordStoreOperation("list", "error", time.Millisecond)
	m.RecordEventPublished("record.updated", "error")

	if got := testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("list", "error")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("record.updated", "error")); got != 1 {
		t.Errorf("event errors = %v, want 1", got)
	}
}

func TestRecordLookupCache(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordLookupCacheHit("dealerships")
	m.RecordLookupCacheHit("dealerships")
	m.RecordLookupCacheMiss("dealerships")

	if got := testutil.ToFloat64(m.LookupCacheHitsTotal.WithLabelValues("dealerships")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LookupCacheMissesTotal.WithLabelValues("dealerships")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestRecordDefinitionReload(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDefinitionReload("success")
	m.RecordDefinitionReload("failure")

	if got := testutil.ToFloat64(m.DefinitionReloadTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failure reloads = %v, want 1", got)
	}
	m.SetDefinitionsLoaded(4)
	if got := testutil.ToFloat64(m.DefinitionsLoaded); got != 4 {
		t.Errorf("loaded = %v, want 4", got)
	}
}

func TestRecordRateLimited(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.RecordRateLimited()
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/ui/tables/{tableId}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ui/tables/dealerships", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/tables/{tableId}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Response size should have been recorded.
	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/ui/views/{viewId}/sort", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/ui/views/v1/sort", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/ui/views/{viewId}/sort", "400"))
	if val != 1 {
		t.Errorf("400 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Without chi, should fall back to raw path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesMetrics(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(body, "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHistogramBuckets(t *testing.T) {
	if len(httpDurationBuckets) != 11 {
		t.Errorf("httpDurationBuckets length = %d, want 11", len(httpDurationBuckets))
	}
	if len(bodySizeBuckets) != 5 {
		t.Errorf("bodySizeBuckets length = %d, want 5", len(bodySizeBuckets))
	}

	for name, buckets := range map[string][]float64{
		"http":   httpDurationBuckets,
		"engine": engineDurationBuckets,
		"store":  storeDurationBuckets,
	} {
		for i := 1; i < len(buckets); i++ {
			if buckets[i] <= buckets[i-1] {
				t.Errorf("%s buckets not sorted at index %d", name, i)
			}
		}
	}
}
