package customers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/view"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

func NewHandler(
	logger *slog.Logger,
	service *Service,
	templates *view.Engine,
	csrf *shared.CSRFManager,
	rbac rbac.Middleware,
) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		rbac:      rbac,
	}
}

type formErrors map[string]string

const perPageMax = 100

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageFromQuery(r.URL.Query(), perPageMax)
	search := r.URL.Query().Get("search")

	customers, total, err := h.service.List(r.Context(), ListCustomersRequest{
		DealerID: p.DealerID,
		Search:   search,
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	})
	if err != nil {
		h.logger.Error("list customers failed", "error", err, "dealerID", p.DealerID)
		http.Error(w, "Failed to load customers", httpx.StatusFor(err))
		return
	}

	pagination := shared.NewPagination(page, perPage, total)
	h.render(w, r, "pages/customers_list.html", map[string]any{
		"Customers":  customers,
		"Search":     search,
		"Pagination": shared.NewPageView(pagination, url.Values{"search": {search}}),
	}, http.StatusOK)
}

func (h *Handler) ShowForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/customer_form.html", map[string]any{
		"Errors":   formErrors{},
		"Customer": &Customer{},
	}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	in := inputFromForm(r)

	customer, err := h.service.Create(r.Context(), p.DealerID, p.UserID, in)
	if err != nil {
		h.logger.Error("create customer failed", "error", err)
		draft := &Customer{}
		apply(draft, in)
		h.render(w, r, "pages/customer_form.html", map[string]any{
			"Errors":   formErrors{"general": shared.UserSafeMessage(err)},
			"Customer": draft,
		}, httpx.StatusFor(err))
		return
	}

	h.logger.Info("customer created", "id", customer.ID, "code", customer.Code, "dealerID", p.DealerID)
	h.redirectWithFlash(w, r, "/customers", "success", "Customer "+customer.Code+" created")
}

func (h *Handler) ShowEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())

	customer, err := h.service.Get(r.Context(), p.DealerID, id)
	if err != nil {
		h.logger.Error("get customer failed", "error", err, "id", id)
		http.Error(w, "Customer not found", httpx.StatusFor(err))
		return
	}

	h.render(w, r, "pages/customer_form.html", map[string]any{
		"Errors":   formErrors{},
		"Customer": customer,
	}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid customer ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	in := inputFromForm(r)

	customer, err := h.service.Update(r.Context(), p.DealerID, id, in)
	if err != nil {
		h.logger.Error("update customer failed", "error", err, "id", id)
		if customer == nil {
			http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
			return
		}
		apply(customer, in)
		h.render(w, r, "pages/customer_form.html", map[string]any{
			"Errors":   formErrors{"general": shared.UserSafeMessage(err)},
			"Customer": customer,
		}, httpx.StatusFor(err))
		return
	}

	h.redirectWithFlash(w, r, "/customers", "success", "Customer updated successfully")
}

// Search answers the invoice form's customer lookup.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	customers, total, err := h.service.List(r.Context(), ListCustomersRequest{
		DealerID: p.DealerID,
		Search:   r.URL.Query().Get("q"),
		Limit:    20,
	})
	if err != nil {
		h.logger.Error("search customers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if customers == nil {
		customers = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": customers, "total": total})
}

func inputFromForm(r *http.Request) CustomerInput {
	return CustomerInput{
		Title:        r.PostFormValue("title"),
		FirstName:    r.PostFormValue("first_name"),
		MiddleName:   r.PostFormValue("middle_name"),
		LastName:     r.PostFormValue("last_name"),
		Email:        r.PostFormValue("email"),
		Phone:        r.PostFormValue("phone"),
		AddressLine1: r.PostFormValue("address_line1"),
		AddressLine2: r.PostFormValue("address_line2"),
		City:         r.PostFormValue("city"),
		County:       r.PostFormValue("county"),
		Postcode:     r.PostFormValue("postcode"),
		Notes:        r.PostFormValue("notes"),
	}
}

// Helpers
func (h *Handler) render(w http.ResponseWriter, r *http.Request, tmpl string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)

	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}

	viewData := view.TemplateData{
		Title:       "Customers",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: "/customers",
		Data:        data,
	}

	if err := h.templates.Render(w, tmpl, viewData, status); err != nil {
		h.logger.Error("template render failed", "error", err, "template", tmpl)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, url, flashType, message string) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: flashType, Message: message})
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}
