package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}
	storeDurationBuckets  = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec
	RateLimitedTotal      prometheus.Counter

	// Table metrics
	TableViewsOpenedTotal *prometheus.CounterVec
	TableRenderDuration   *prometheus.HistogramVec
	SelectionChangesTotal *prometheus.CounterVec

	// Form metrics
	FormSessionsOpenedTotal *prometheus.CounterVec
	FormSubmissionsTotal    *prometheus.CounterVec
	FormSubmitDuration      *prometheus.HistogramVec
	FormValidationFailures  *prometheus.CounterVec

	// Session metrics
	ActiveSessions *prometheus.GaugeVec

	// Store and event metrics
	StoreOperationsTotal *prometheus.CounterVec
	StoreDuration        *prometheus.HistogramVec
	StoreBreakerState    prometheus.Gauge
	EventsPublishedTotal *prometheus.CounterVec

	// Cache metrics
	LookupCacheHitsTotal   *prometheus.CounterVec
	LookupCacheMissesTotal *prometheus.CounterVec

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealerdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealerdesk_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealerdesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealerdesk_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter.",
		}),

		// Tables
		TableViewsOpenedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_table_views_opened_total",
			Help: "Total number of table views opened.",
		}, []string{"table_id"}),
		TableRenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealerdesk_table_render_duration_seconds",
			Help:    "Time to derive a table view in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"table_id"}),
		SelectionChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_table_selection_changes_total",
			Help: "Total number of row selection changes.",
		}, []string{"table_id"}),

		// Forms
		FormSessionsOpenedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_form_sessions_opened_total",
			Help: "Total number of form sessions opened.",
		}, []string{"form_id", "mode"}),
		FormSubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_form_submissions_total",
			Help: "Total number of form submissions by outcome.",
		}, []string{"form_id", "outcome"}),
		FormSubmitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealerdesk_form_submit_duration_seconds",
			Help:    "Form submission duration in seconds.",
			Buckets: storeDurationBuckets,
		}, []string{"form_id"}),
		FormValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_form_validation_failures_total",
			Help: "Total number of field validation failures.",
		}, []string{"form_id", "field"}),

		// Sessions
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dealerdesk_active_sessions",
			Help: "Number of live table view and form sessions.",
		}, []string{"kind"}),

		// Store and events
		StoreOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_store_operations_total",
			Help: "Total number of record store operations.",
		}, []string{"operation", "status"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealerdesk_store_duration_seconds",
			Help:    "Record store operation duration in seconds.",
			Buckets: storeDurationBuckets,
		}, []string{"operation"}),
		StoreBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealerdesk_store_breaker_state",
			Help: "Record store circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_events_published_total",
			Help: "Total number of record change events published.",
		}, []string{"type", "status"}),

		// Cache
		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_lookup_cache_hits_total",
			Help: "Total lookup cache hits.",
		}, []string{"lookup_id"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_lookup_cache_misses_total",
			Help: "Total lookup cache misses.",
		}, []string{"lookup_id"}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerdesk_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealerdesk_definitions_loaded",
			Help: "Number of loaded tables and forms.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.RateLimitedTotal,
		// Tables
		m.TableViewsOpenedTotal,
		m.TableRenderDuration,
		m.SelectionChangesTotal,
		// Forms
		m.FormSessionsOpenedTotal,
		m.FormSubmissionsTotal,
		m.FormSubmitDuration,
		m.FormValidationFailures,
		// Sessions
		m.ActiveSessions,
		// Store and events
		m.StoreOperationsTotal,
		m.StoreDuration,
		m.StoreBreakerState,
		m.EventsPublishedTotal,
		// Cache
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// RecordTableViewOpened records a new table view.
func (m *Metrics) RecordTableViewOpened(tableID string) {
	m.TableViewsOpenedTotal.WithLabelValues(tableID).Inc()
}

// RecordTableRender records the time taken to derive a table view.
func (m *Metrics) RecordTableRender(tableID string, duration time.Duration) {
	m.TableRenderDuration.WithLabelValues(tableID).Observe(duration.Seconds())
}

// RecordSelectionChange records a row selection change.
func (m *Metrics) RecordSelectionChange(tableID string) {
	m.SelectionChangesTotal.WithLabelValues(tableID).Inc()
}

// RecordFormSessionOpened records a new form session. Mode is "create" or
// "edit".
func (m *Metrics) RecordFormSessionOpened(formID, mode string) {
	m.FormSessionsOpenedTotal.WithLabelValues(formID, mode).Inc()
}

// RecordFormSubmission records a form submission outcome: saved, invalid,
// busy, or error.
func (m *Metrics) RecordFormSubmission(formID, outcome string, duration time.Duration) {
	m.FormSubmissionsTotal.WithLabelValues(formID, outcome).Inc()
	m.FormSubmitDuration.WithLabelValues(formID).Observe(duration.Seconds())
}

// RecordFormValidationFailure records a failed field.
func (m *Metrics) RecordFormValidationFailure(formID, field string) {
	m.FormValidationFailures.WithLabelValues(formID, field).Inc()
}

// SetActiveSessions sets the number of live sessions of a kind.
func (m *Metrics) SetActiveSessions(kind string, count float64) {
	m.ActiveSessions.WithLabelValues(kind).Set(count)
}

// SetStoreBreakerState sets the store circuit breaker state
// (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetStoreBreakerState(state float64) {
	m.StoreBreakerState.Set(state)
}

// RecordStoreOperation records a record store call.
func (m *Metrics) RecordStoreOperation(operation, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventPublished records a published record change event.
func (m *Metrics) RecordEventPublished(eventType, status string) {
	m.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(lookupID string) {
	m.LookupCacheHitsTotal.WithLabelValues(lookupID).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(lookupID string) {
	m.LookupCacheMissesTotal.WithLabelValues(lookupID).Inc()
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
