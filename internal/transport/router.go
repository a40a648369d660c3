package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/config"
	"github.com/pitabwire/dealerdesk/internal/lookup"
	"github.com/pitabwire/dealerdesk/internal/metadata"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
// Metrics and Logger may be nil.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Tables    *metadata.TableProvider
	Forms     *metadata.FormProvider
	Menu      *metadata.MenuProvider
	Lookups   *lookup.Provider
	Sessions  *session.Manager
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass rate
// limiting and request logging.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		tables:   deps.Tables,
		forms:    deps.Forms,
		menu:     deps.Menu,
		lookups:  deps.Lookups,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		logger:   logger,
		maxBody:  deps.Config.Server.MaxUploadBytes,
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(RequestID)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(SecurityHeaders)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(deps.Config.Server.RateLimit, deps.Metrics))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		r.Get("/ui/navigation", h.navigation)
		r.Get("/ui/lookups/{lookupId}", h.lookup)

		r.Get("/ui/tables/{tableId}", h.getTable)
		r.Post("/ui/tables/{tableId}/views", h.openView)

		r.Route("/ui/views/{viewId}", func(r chi.Router) {
			r.Get("/", h.getView)
			r.Delete("/", h.closeView)
			r.Post("/search", h.viewSearch)
			r.Post("/filter", h.viewFilter)
			r.Post("/sort", h.viewSort)
			r.Post("/page", h.viewPage)
			r.Post("/select", h.viewSelect)
			r.Post("/select-page", h.viewSelectPage)
			r.Post("/clear-selection", h.viewClearSelection)
			r.Post("/highlight", h.viewHighlight)
			r.Post("/reload", h.viewReload)
		})

		r.Post("/ui/forms/{formId}/sessions", h.openForm)
		r.Route("/ui/form-sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", h.getForm)
			r.Delete("/", h.closeForm)
			r.Post("/values", h.formValues)
			r.Post("/toggle-option", h.formToggleOption)
			r.Post("/file", h.formFile)
			r.Post("/reveal", h.formReveal)
			r.Post("/submit", h.formSubmit)
			r.Post("/cancel", h.formCancel)
		})
	})

	return r
}

// handlers binds the route handlers to their providers.
type handlers struct {
	tables   *metadata.TableProvider
	forms    *metadata.FormProvider
	menu     *metadata.MenuProvider
	lookups  *lookup.Provider
	sessions *session.Manager
	metrics  *observability.Metrics
	logger   *zap.Logger
	maxBody  int64
}

func (h *handlers) navigation(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.menu.GetMenu(r.Context()))
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) {
	resp, err := h.lookups.GetLookup(r.Context(), chi.URLParam(r, "lookupId"), r.URL.Query().Get("q"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
