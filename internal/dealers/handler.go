package dealers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/view"
)

// Handler serves the dealer profile pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds the dealer handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers dealer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermStockView, rbac.PermInvoiceView))
		r.Get("/", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.PermDealerManage))
		r.Post("/", h.update)
	})
}

type formErrors map[string]string

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	dealer, err := h.service.Get(r.Context(), p.DealerID)
	if err != nil {
		h.logger.Error("load dealer failed", "error", err, "dealerID", p.DealerID)
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	h.render(w, r, map[string]any{"Dealer": dealer, "Errors": formErrors{}}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())

	req := UpdateDealerRequest{
		Name:          r.PostFormValue("name"),
		CompanyName:   r.PostFormValue("company_name"),
		AddressLine1:  r.PostFormValue("address_line1"),
		AddressLine2:  r.PostFormValue("address_line2"),
		City:          r.PostFormValue("city"),
		County:        r.PostFormValue("county"),
		Postcode:      r.PostFormValue("postcode"),
		Phone:         r.PostFormValue("phone"),
		Email:         r.PostFormValue("email"),
		VATNumber:     r.PostFormValue("vat_number"),
		CompanyNumber: r.PostFormValue("company_number"),
		InvoiceTerms:  r.PostFormValue("invoice_terms"),
	}
	// The form takes a percentage.
	rate, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(r.PostFormValue("default_vat_rate")), "%"))
	if err != nil {
		h.render(w, r, map[string]any{"Dealer": formDealer(p.DealerID, req), "Errors": formErrors{"general": "VAT rate must be a number"}}, http.StatusBadRequest)
		return
	}
	req.DefaultVATRate = rate.Div(decimal.NewFromInt(100))

	if _, err := h.service.Update(r.Context(), p.DealerID, req); err != nil {
		h.logger.Error("update dealer failed", "error", err, "dealerID", p.DealerID)
		h.render(w, r, map[string]any{"Dealer": formDealer(p.DealerID, req), "Errors": formErrors{"general": shared.UserSafeMessage(err)}}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, "/dealer", "success", "Dealer details saved")
}

func formDealer(id int64, req UpdateDealerRequest) *Dealer {
	return &Dealer{
		ID: id, Name: req.Name, CompanyName: req.CompanyName, AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2, City: req.City, County: req.County, Postcode: req.Postcode,
		Phone: req.Phone, Email: req.Email, VATNumber: req.VATNumber, CompanyNumber: req.CompanyNumber,
		InvoiceTerms: req.InvoiceTerms, DefaultVATRate: req.DefaultVATRate,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)

	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Dealer",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: "/dealer",
		Data:        data,
	}
	if err := h.templates.Render(w, "pages/dealer_profile.html", viewData, status); err != nil {
		h.logger.Error("template render failed", "error", err)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, flashType, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: flashType, Message: message})
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
