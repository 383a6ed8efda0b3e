package uploads

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
)

// FormField is the multipart field carrying the file.
const FormField = "file"

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// License accepts a driving licence scan.
func (h *Handler) License(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, CategoryLicense, "License uploaded successfully")
}

// Document accepts any whitelisted file; the category form field picks the
// folder and defaults to document.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "", "Document uploaded successfully")
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, category, okMessage string) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok || p.UserID == 0 {
		h.logger.Warn("upload rejected: not authenticated", "path", r.URL.Path)
		respond(w, http.StatusUnauthorized, Response{Message: "Unauthorized"})
		return
	}
	allowed, err := h.rbac.Service.Can(r.Context(), p.UserID, rbac.PermUploadCreate)
	if err != nil && !errors.Is(err, rbac.ErrNotFound) {
		h.logger.Error("upload permission lookup failed", "userID", p.UserID, "error", err)
		respond(w, http.StatusInternalServerError, Response{Message: "Failed to upload file"})
		return
	}
	if !allowed {
		h.logger.Warn("upload rejected: permission denied", "userID", p.UserID, "path", r.URL.Path)
		respond(w, http.StatusForbidden, Response{Message: "Forbidden"})
		return
	}

	maxBytes := h.service.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		h.logger.Warn("upload rejected: unreadable form", "userID", p.UserID, "error", err)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respond(w, http.StatusBadRequest, Response{Message: "File is too large. Maximum size is 10MB"})
			return
		}
		respond(w, http.StatusBadRequest, Response{Message: "No file provided"})
		return
	}
	if category == "" {
		category = r.FormValue("category")
		if category == "" {
			category = CategoryDocument
		}
	}

	file, header, err := r.FormFile(FormField)
	if err != nil {
		h.logger.Warn("upload rejected: no file", "userID", p.UserID, "category", category)
		respond(w, http.StatusBadRequest, Response{Message: "No file provided"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.logger.Error("upload read failed", "userID", p.UserID, "error", err)
		respond(w, http.StatusInternalServerError, Response{Message: "Failed to read file"})
		return
	}

	doc, err := h.service.Upload(r.Context(), p, category, File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		status := httpx.StatusFor(err)
		msg := shared.UserSafeMessage(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("upload failed", "userID", p.UserID, "category", category, "error", err)
			msg = "Failed to upload file"
		} else {
			h.logger.Warn("upload rejected", "userID", p.UserID, "category", category, "status", status, "error", err)
		}
		respond(w, status, Response{Message: msg})
		return
	}

	h.logger.Info("upload stored", "userID", p.UserID, "dealerID", doc.DealerID, "category", doc.Category,
		"key", doc.ObjectKey, "size", doc.SizeBytes)
	respond(w, http.StatusOK, Response{
		Success:  true,
		Message:  okMessage,
		FileURL:  h.service.URL(doc),
		FileName: doc.FileName,
		FileSize: doc.SizeBytes,
		FileType: doc.ContentType,
	})
}

func respond(w http.ResponseWriter, status int, body Response) {
	httpx.JSON(w, status, body)
}
