package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/freightdesk/internal/auth"
	"github.com/odyssey-erp/freightdesk/internal/catalog"
	"github.com/odyssey-erp/freightdesk/internal/commerce"
	"github.com/odyssey-erp/freightdesk/internal/observability"
	"github.com/odyssey-erp/freightdesk/internal/platform/httpx"
	"github.com/odyssey-erp/freightdesk/jobs"
	"github.com/odyssey-erp/freightdesk/report"
)

// RouterParams contains dependencies for the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	DocumentHandler *commerce.Handler
	PublicHandler   *commerce.PublicHandler
	CatalogHandler  *catalog.Handler
	ReportHandler   *report.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter builds the HTTP router: staff API under /api/v1 behind bearer
// tokens, token gateway under /public behind a stricter limiter.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(params.Config.Auth(), params.Logger))
		if params.DocumentHandler != nil {
			params.DocumentHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.ReportHandler != nil {
			r.Route("/report", params.ReportHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.PublicHandler != nil {
		r.Route("/public", func(r chi.Router) {
			r.Use(PublicLimiter(params.Config.PublicRateLimit))
			params.PublicHandler.MountRoutes(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondNotFound(w, "route not found")
	})
	return r
}
