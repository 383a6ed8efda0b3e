package uploads

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the endpoints under /api/upload. The handler answers
// authentication and permission failures itself with the upload envelope, so
// the router mounts it behind auth.Authenticator.LoadPrincipal rather than
// RequireAPIUser.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/license", h.License)
	r.Post("/document", h.Document)
}
