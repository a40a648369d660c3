// Package integration provides a reusable test harness for end-to-end
// integration testing of the dealerdesk server. It starts a full HTTP server
// over the repository's definitions, schemas and seed data, backed by an
// in-memory or Redis record store.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/pitabwire/dealerdesk/internal/config"
	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/events"
	"github.com/pitabwire/dealerdesk/internal/lookup"
	"github.com/pitabwire/dealerdesk/internal/metadata"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/session"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/internal/transport"
)

// TestHarness encapsulates a fully wired dealerdesk instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	// Internal components exposed for advanced test scenarios.
	Registry  *definition.Registry
	Store     store.Store
	Publisher *events.MemoryPublisher
	Sessions  *session.Manager
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Redis     *miniredis.Miniredis

	// DefinitionsDir is a private copy of the definitions, safe to modify.
	DefinitionsDir string

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionsDir string
	seedFile       string
	storeDriver    string
	hotReload      bool
	handlerTimeout time.Duration
	rateLimit      config.RateLimitConfig
}

// WithDefinitions sets the directory whose definitions are copied into the
// harness.
func WithDefinitions(dir string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionsDir = dir
	}
}

// WithSeed sets the seed file loaded into the record store. An empty path
// starts with an empty store.
func WithSeed(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.seedFile = path
	}
}

// WithRedisStore backs the record store with an in-process Redis server.
func WithRedisStore() HarnessOption {
	return func(c *harnessConfig) {
		c.storeDriver = config.StoreRedis
	}
}

// WithHotReload watches the definitions directory for changes.
func WithHotReload() HarnessOption {
	return func(c *harnessConfig) {
		c.hotReload = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRateLimit enables per-client rate limiting.
func WithRateLimit(rps float64, burst int) HarnessOption {
	return func(c *harnessConfig) {
		c.rateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: rps, Burst: burst}
	}
}

// NewTestHarness creates and starts a full dealerdesk test instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	root := repoRoot()
	hc := &harnessConfig{
		definitionsDir: filepath.Join(root, "definitions"),
		seedFile:       filepath.Join(root, "seed", "dealership.json"),
		storeDriver:    config.StoreMemory,
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	// Step 1: Build config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.RateLimit = hc.rateLimit
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Definitions.SchemaDirs = []string{filepath.Join(root, "schemas")}
	h.cfg.Definitions.ReloadDebounce = 50 * time.Millisecond
	h.cfg.Store.Driver = hc.storeDriver
	h.cfg.Store.AddrEnv = "DEALERDESK_TEST_REDIS_ADDR"
	h.cfg.Sessions.CleanupInterval = time.Hour

	// Step 2: Metrics on a private registry.
	reg := prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(reg)
	h.Gatherer = reg

	// Step 3: Load definitions from a private copy.
	h.DefinitionsDir = t.TempDir()
	copyDir(t, hc.definitionsDir, h.DefinitionsDir)
	h.cfg.Definitions.Directories = []string{h.DefinitionsDir}

	h.Registry = definition.NewRegistry(nil)
	reloader := &definition.Reloader{
		Loader:      definition.NewLoader(h.cfg.Definitions.Include...),
		Validator:   definition.NewValidator(),
		Registry:    h.Registry,
		Directories: h.cfg.Definitions.Directories,
		Logger:      logger,
	}
	if _, err := reloader.Reload(); err != nil {
		t.Fatalf("load definitions: %v", err)
	}

	// Step 4: Open the record store.
	if hc.storeDriver == config.StoreRedis {
		h.Redis = miniredis.RunT(t)
		t.Setenv(h.cfg.Store.AddrEnv, h.Redis.Addr())
	}
	backend, closeStore, err := store.Open(ctx, h.cfg.Store, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(closeStore)
	h.Store = store.NewInstrumented(store.Guard(backend, h.cfg.Store, h.Metrics, logger), h.Metrics)

	if hc.seedFile != "" {
		seed, err := store.LoadSeed(hc.seedFile)
		if err != nil {
			t.Fatalf("load seed: %v", err)
		}
		if _, err := store.Seed(ctx, h.Store, seed); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	// Step 5: Events and providers.
	h.Publisher = events.NewMemoryPublisher()
	publisher := events.NewInstrumented(h.Publisher, h.Metrics)

	lookups := lookup.NewProvider(h.Registry, h.Store, h.Metrics, h.cfg.Lookup.Cache.TTL, h.cfg.Lookup.Cache.MaxEntries, logger)
	tables := metadata.NewTableProvider(h.Registry, h.Store, metadata.TableDefaults{
		ItemsPerPage:    h.cfg.Tables.ItemsPerPage,
		HighlightWindow: h.cfg.Tables.HighlightWindow,
	}, logger)
	forms := metadata.NewFormProvider(metadata.FormDeps{
		Registry:  h.Registry,
		Store:     h.Store,
		Lookups:   lookups,
		Publisher: publisher,
		SpecDirs:  h.cfg.Definitions.SchemaDirs,
		Logger:    logger,
	})
	menu := metadata.NewMenuProvider(h.Registry, h.Store, logger)

	h.Sessions = session.NewManager(session.Config{
		TTL:             h.cfg.Sessions.TTL,
		MaxSessions:     h.cfg.Sessions.MaxSessions,
		CleanupInterval: h.cfg.Sessions.CleanupInterval,
	}, session.Options{Metrics: h.Metrics, Logger: logger})
	h.Sessions.Start(ctx)
	t.Cleanup(h.Sessions.Close)

	// Step 6: Hot reload.
	if hc.hotReload {
		watcher, err := definition.NewWatcher(reloader, logger,
			definition.WithDebounce(h.cfg.Definitions.ReloadDebounce),
			definition.WithReloadHook(func(err error) {
				if err != nil {
					h.Metrics.RecordDefinitionReload("failure")
					return
				}
				h.Metrics.RecordDefinitionReload("success")
			}),
		)
		if err != nil {
			t.Fatalf("create watcher: %v", err)
		}
		t.Cleanup(func() { _ = watcher.Close() })
		if err := watcher.Start(ctx); err != nil {
			t.Fatalf("start watcher: %v", err)
		}
	}

	// Step 7: Build router with full middleware chain.
	router := transport.NewRouter(transport.Dependencies{
		Config:   h.cfg,
		Logger:   logger,
		Metrics:  h.Metrics,
		Tables:   tables,
		Forms:    forms,
		Menu:     menu,
		Lookups:  lookups,
		Sessions: h.Sessions,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return h.Registry.Len() > 0 },
			RecordStore:       h.Store,
			EventPublisher:    publisher,
		},
	})

	// Step 8: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// WriteDefinition replaces a file in the harness's definitions directory.
func (h *TestHarness) WriteDefinition(name, content string) {
	h.t.Helper()
	if err := os.WriteFile(filepath.Join(h.DefinitionsDir, name), []byte(content), 0o600); err != nil {
		h.t.Fatalf("write definition %s: %v", name, err)
	}
}

// --- HTTP client helpers ---

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, nil)
}

// GETWithHeaders performs a GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, headers)
}

// POST performs a POST request with a JSON body. A nil body sends none.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, nil)
}

// DELETE performs a DELETE request.
func (h *TestHarness) DELETE(path string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code and
// closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Helpers ---

// repoRoot returns the absolute path to the repository root.
func repoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// copyDir copies every regular file under src into dst, keeping the layout.
func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o600)
	})
	if err != nil {
		t.Fatalf("copy %s: %v", src, err)
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
