package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/forecourt/forecourt/internal/audit/http"
	"github.com/forecourt/forecourt/internal/auth"
	"github.com/forecourt/forecourt/internal/customers"
	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/observability"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/stock"
	"github.com/forecourt/forecourt/internal/taxonomy"
	"github.com/forecourt/forecourt/internal/uploads"
	"github.com/forecourt/forecourt/internal/view"
	"github.com/forecourt/forecourt/jobs"
	"github.com/forecourt/forecourt/report"
	"github.com/forecourt/forecourt/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authenticator  auth.Authenticator

	AuthHandler        *auth.Handler
	StockHandler       *stock.Handler
	InvoiceHandler     *invoices.Handler
	CustomerHandler    *customers.Handler
	DealerHandler      *dealers.Handler
	UploadHandler      *uploads.Handler
	TaxonomyHandler    *taxonomy.Handler
	ReportHandler      *report.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Dashboard          http.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with forecourt defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountAPIRoutes)
		r.Group(func(r chi.Router) {
			r.Use(params.Authenticator.LoadPrincipal)
			mountOptional(r, "/upload", params.UploadHandler, func(h *uploads.Handler) func(chi.Router) { return h.MountRoutes })
		})
		r.Group(func(r chi.Router) {
			r.Use(params.Authenticator.RequireAPIUser)
			mountOptional(r, "/stock", params.StockHandler, func(h *stock.Handler) func(chi.Router) { return h.MountAPIRoutes })
			mountOptional(r, "/invoices", params.InvoiceHandler, func(h *invoices.Handler) func(chi.Router) { return h.MountAPIRoutes })
			mountOptional(r, "/customers", params.CustomerHandler, func(h *customers.Handler) func(chi.Router) { return h.MountAPIRoutes })
			mountOptional(r, "/me/permissions", params.PermissionsHandler, func(h *rbac.PermissionsHandler) func(chi.Router) { return h.MountRoutes })
			mountOptional(r, "/jobs", params.JobHandler, func(h *jobs.Handler) func(chi.Router) { return h.MountAPIRoutes })
			if params.TaxonomyHandler != nil {
				params.TaxonomyHandler.MountRoutes(r)
			}
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(params.Authenticator.RequireUser)
		if params.Dashboard != nil {
			r.Method(http.MethodGet, "/", params.Dashboard)
		}
		mountOptional(r, "/stock", params.StockHandler, func(h *stock.Handler) func(chi.Router) { return h.MountRoutes })
		mountOptional(r, "/invoices", params.InvoiceHandler, func(h *invoices.Handler) func(chi.Router) { return h.MountRoutes })
		mountOptional(r, "/customers", params.CustomerHandler, func(h *customers.Handler) func(chi.Router) { return h.MountRoutes })
		mountOptional(r, "/dealer", params.DealerHandler, func(h *dealers.Handler) func(chi.Router) { return h.MountRoutes })
		mountOptional(r, "/jobs", params.JobHandler, func(h *jobs.Handler) func(chi.Router) { return h.MountRoutes })
		mountOptional(r, "/report", params.ReportHandler, func(h *report.Handler) func(chi.Router) { return h.MountRoutes })
		mountOptional(r, "/audit", params.AuditHandler, func(h *audithttp.Handler) func(chi.Router) { return h.MountRoutes })
	})

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// mountOptional mounts h under pattern unless it is nil.
func mountOptional[H any](r chi.Router, pattern string, h *H, routes func(*H) func(chi.Router)) {
	if h == nil {
		return
	}
	r.Route(pattern, routes(h))
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
