package taxonomy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/rbac"
)

// Handler exposes the valuation wizard to API clients.
type Handler struct {
	logger    *slog.Logger
	wizard    *Wizard
	catalog   Catalog
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds the taxonomy handler.
func NewHandler(logger *slog.Logger, catalog Catalog, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		wizard:    NewWizard(catalog),
		catalog:   catalog,
		validator: validator.New(),
		rbac:      rbac,
	}
}

// MountRoutes registers the wizard routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermValuationUse))
		r.Post("/valuations/wizard", h.resolve)
		r.Get("/taxonomy/vehicle-types", h.vehicleTypes)
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var sel Selections
	if err := httpx.DecodeJSON(r, &sel); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(sel); err != nil {
		httpx.RespondError(w, httpx.Invalid(err))
		return
	}
	step, err := h.wizard.Resolve(r.Context(), sel)
	if err != nil {
		h.fail(w, "resolve wizard step", err)
		return
	}
	httpx.JSON(w, http.StatusOK, step)
}

func (h *Handler) vehicleTypes(w http.ResponseWriter, r *http.Request) {
	opts, err := h.catalog.VehicleTypes(r.Context())
	if err != nil {
		h.fail(w, "list vehicle types", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": opts})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidSelection):
		h.logger.Info(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Invalid Selection", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Taxonomy Unavailable", "The vehicle lookup service is not responding, please try again shortly")
	}
}
