package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/shared"
)

// PermissionsHandler reports the caller's permissions so the UI and API
// clients can hide actions they cannot perform.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.mine)
}

type permissionsResponse struct {
	UserID      int64    `json:"userId"`
	DealerID    int64    `json:"dealerId"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), p.UserID)
	if err != nil {
		h.logger.Error("load permissions", slog.Int64("user_id", p.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{UserID: p.UserID, DealerID: p.DealerID, Permissions: perms})
}
