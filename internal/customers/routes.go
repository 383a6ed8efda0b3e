package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/forecourt/forecourt/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermCustomerView))
		r.Get("/", h.List)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermCustomerEdit))
		r.Get("/new", h.ShowForm)
		r.Post("/", h.Create)
		r.Get("/{id}/edit", h.ShowEditForm)
		r.Post("/{id}/edit", h.Update)
	})
}

// MountAPIRoutes registers the JSON lookup under /api/customers.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermCustomerView)).Get("/", h.Search)
}
