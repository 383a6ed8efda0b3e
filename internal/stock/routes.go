package stock

import (
	"github.com/go-chi/chi/v5"

	"github.com/forecourt/forecourt/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermStockView))
		r.Get("/", h.List)
		r.Get("/export.xlsx", h.Export)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermStockEdit))
		r.Get("/new", h.ShowForm)
		r.Post("/", h.Create)
		r.Get("/{id}/edit", h.ShowEditForm)
		r.Post("/{id}/edit", h.Update)
		r.Post("/{id}/images", h.UploadImage)
		r.Post("/{id}/images/order", h.ReorderImages)
		r.Post("/{id}/images/{imageID}/delete", h.DeleteImage)
	})
	r.With(h.rbac.RequireAny(rbac.PermStockView)).Get("/{id}", h.Show)
}

// MountAPIRoutes registers the JSON endpoints under /api/stock.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermStockView))
		r.Get("/", h.APIList)
		r.Get("/{id}", h.APIGet)
	})
	r.With(h.rbac.RequireAll(rbac.PermStockEdit)).Post("/{id}/images/order", h.APIReorderImages)
}
