package invoices

import (
	"github.com/go-chi/chi/v5"

	"github.com/forecourt/forecourt/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInvoiceView))
		r.Get("/", h.List)
		r.Get("/export.xlsx", h.Export)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/pdf", h.PDF)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInvoiceEdit))
		r.Post("/", h.Create)
		r.Get("/{id}/edit", h.ShowEditForm)
		r.Post("/{id}/edit", h.Update)
		r.Post("/{id}/pdf/render", h.QueuePDF)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInvoiceIssue))
		r.Post("/{id}/issue", h.Issue)
		r.Post("/{id}/void", h.Void)
	})
}

// MountAPIRoutes registers the JSON endpoints under /api/invoices.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermInvoiceView))
		r.Post("/calculate", h.APICalculate)
		r.Get("/", h.APIList)
		r.Get("/{id}", h.APIGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInvoiceEdit))
		r.Post("/", h.APICreate)
		r.Put("/{id}", h.APIUpdate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermInvoiceIssue))
		r.Post("/{id}/issue", h.APIIssue)
		r.Post("/{id}/void", h.APIVoid)
	})
}
