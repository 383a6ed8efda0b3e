package invoices

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/platform/xlsx"
	"github.com/forecourt/forecourt/internal/pricing"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/view"
)

// IdempotencyHeader carries the client's key on issue requests.
const IdempotencyHeader = "Idempotency-Key"

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

func listRequest(r *http.Request, dealerID int64) ListInvoicesRequest {
	q := r.URL.Query()
	return ListInvoicesRequest{
		DealerID:  dealerID,
		Status:    Status(q.Get("status")),
		SaleType:  pricing.SaleType(q.Get("sale_type")),
		InvoiceTo: pricing.InvoiceTo(q.Get("invoice_to")),
		Search:    q.Get("search"),
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageFromQuery(r.URL.Query(), perPageMax)
	req := listRequest(r, p.DealerID)
	req.Limit = perPage
	req.Offset = (page - 1) * perPage

	invoices, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices failed", "error", err, "dealerID", p.DealerID)
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	filters := url.Values{
		"status":     {string(req.Status)},
		"sale_type":  {string(req.SaleType)},
		"invoice_to": {string(req.InvoiceTo)},
		"search":     {req.Search},
	}
	h.render(w, r, "pages/invoices_list.html", map[string]any{
		"Invoices":   invoices,
		"Filters":    req,
		"ExportURL":  "/invoices/export.xlsx?" + filters.Encode(),
		"Pagination": shared.NewPageView(shared.NewPagination(page, perPage, total), filters),
	}, http.StatusOK)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	if err := h.service.ExportRegisterXLSX(r.Context(), w, listRequest(r, p.DealerID)); err != nil {
		h.logger.Error("invoice export failed", "error", err, "dealerID", p.DealerID)
		w.Header().Del("Content-Disposition")
		httpx.RespondError(w, err)
	}
}

// Create opens a draft, optionally from vehicle_id and customer_id fields.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	req := CreateDraftRequest{
		SaleType:  pricing.SaleType(r.PostFormValue("sale_type")),
		InvoiceTo: pricing.InvoiceTo(r.PostFormValue("invoice_to")),
	}
	req.VehicleID, _ = strconv.ParseInt(r.PostFormValue("vehicle_id"), 10, 64)
	req.CustomerID, _ = strconv.ParseInt(r.PostFormValue("customer_id"), 10, 64)

	inv, err := h.service.CreateDraft(r.Context(), p, req)
	if err != nil {
		h.logger.Error("create invoice failed", "error", err, "vehicleID", req.VehicleID, "customerID", req.CustomerID)
		back := "/invoices"
		if req.VehicleID > 0 {
			back = fmt.Sprintf("/stock/%d", req.VehicleID)
		}
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.logger.Info("invoice draft created", "invoiceID", inv.ID, "dealerID", p.DealerID)
	h.redirectWithFlash(w, r, fmt.Sprintf("/invoices/%d/edit", inv.ID), "success", "Draft invoice created")
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	doc, err := h.service.Document(r.Context(), p.DealerID, id)
	if err != nil {
		h.logger.Error("load invoice failed", "error", err, "id", id)
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	h.render(w, r, "pages/invoice_view.html", map[string]any{
		"Document":       doc,
		"PDFURL":         h.service.PDFURL(doc.Invoice),
		"Renderers":      h.service.RendererNames(),
		"IdempotencyKey": uuid.NewString(),
		"Errors":         formErrors{},
	}, http.StatusOK)
}

func (h *Handler) ShowEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	doc, err := h.service.Document(r.Context(), p.DealerID, id)
	if err != nil {
		h.logger.Error("load invoice failed", "error", err, "id", id)
		http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
		return
	}
	if doc.Invoice.Status != StatusDraft {
		h.redirectWithFlash(w, r, fmt.Sprintf("/invoices/%d", id), "error", "Only draft invoices can be edited")
		return
	}
	h.renderEdit(w, r, doc.Invoice, doc.Breakdown, formErrors{}, http.StatusOK)
}

// Update saves the form. With action=calculate the figures are recomputed
// and shown without saving.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	data, errs := DataFromForm(r)
	draft := &Invoice{ID: id, DealerID: p.DealerID, Status: StatusDraft, Data: data}
	if len(errs) > 0 {
		h.renderEdit(w, r, draft, pricing.Breakdown{}, errs, http.StatusBadRequest)
		return
	}

	if r.PostFormValue("action") == "calculate" {
		b, err := h.service.Calculate(r.Context(), p.DealerID, data)
		if err != nil {
			h.renderEdit(w, r, draft, pricing.Breakdown{}, formErrors{"general": shared.UserSafeMessage(err)}, httpx.StatusFor(err))
			return
		}
		h.renderEdit(w, r, draft, b, formErrors{}, http.StatusOK)
		return
	}

	inv, b, err := h.service.Update(r.Context(), p.DealerID, id, data)
	if err != nil {
		h.logger.Error("update invoice failed", "error", err, "id", id)
		if inv == nil {
			http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
			return
		}
		h.renderEdit(w, r, draft, b, formErrors{"general": shared.UserSafeMessage(err)}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, fmt.Sprintf("/invoices/%d/edit", inv.ID), "success", "Invoice saved")
}

// Issue reads the key from the Idempotency-Key header or the
// idempotency_key field so a double submitted form issues once.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	back := fmt.Sprintf("/invoices/%d", id)

	inv, err := h.service.Issue(r.Context(), p, id, idempotencyKey(r))
	if err != nil {
		h.logger.Error("issue invoice failed", "error", err, "id", id)
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Invoice "+inv.DisplayNumber()+" issued")
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	back := fmt.Sprintf("/invoices/%d", id)
	inv, err := h.service.Void(r.Context(), p, id, VoidRequest{Reason: r.PostFormValue("reason")})
	if err != nil {
		h.logger.Error("void invoice failed", "error", err, "id", id)
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Invoice "+inv.DisplayNumber()+" voided")
}

// PDF streams a freshly rendered PDF. ?renderer picks html or native.
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	pdf, inv, err := h.service.RenderPDF(r.Context(), p.DealerID, id, r.URL.Query().Get("renderer"))
	if err != nil {
		h.logger.Error("render invoice pdf failed", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, inv.DisplayNumber()))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		h.logger.Warn("write pdf failed", "error", err, "id", id)
	}
}

// QueuePDF schedules a stored copy of the PDF.
func (h *Handler) QueuePDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	back := fmt.Sprintf("/invoices/%d", id)
	if err := h.service.QueuePDF(r.Context(), p.DealerID, id, r.PostFormValue("renderer")); err != nil {
		h.logger.Error("queue invoice pdf failed", "error", err, "id", id)
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "PDF is being generated")
}

// API

type calculateResponse struct {
	Breakdown pricing.Breakdown `json:"breakdown"`
	Lines     []Line            `json:"lines"`
}

// APICalculate returns the derived figures for an unsaved invoice.
func (h *Handler) APICalculate(w http.ResponseWriter, r *http.Request) {
	var data ComprehensiveInvoiceData
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	b, err := h.service.Calculate(r.Context(), p.DealerID, data)
	if err != nil {
		h.logger.Warn("calculate rejected", "error", err, "dealerID", p.DealerID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calculateResponse{Breakdown: b, Lines: SummaryLines(b)})
}

func (h *Handler) APIList(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageFromQuery(r.URL.Query(), perPageMax)
	req := listRequest(r, p.DealerID)
	req.Limit = perPage
	req.Offset = (page - 1) * perPage

	invoices, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list invoices failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": invoices, "total": total, "page": page, "perPage": perPage})
}

func (h *Handler) APIGet(w http.ResponseWriter, r *http.Request) {
	id, ok := apiInvoiceID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	doc, err := h.service.Document(r.Context(), p.DealerID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoice":   doc.Invoice,
		"breakdown": doc.Breakdown,
		"pdfUrl":    h.service.PDFURL(doc.Invoice),
	})
}

func (h *Handler) APICreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.CreateDraft(r.Context(), p, req)
	if err != nil {
		h.logger.Error("create invoice failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) APIUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := apiInvoiceID(w, r)
	if !ok {
		return
	}
	var data ComprehensiveInvoiceData
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, b, err := h.service.Update(r.Context(), p.DealerID, id, data)
	if err != nil {
		h.logger.Warn("update invoice rejected", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv, "breakdown": b})
}

func (h *Handler) APIIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := apiInvoiceID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.Issue(r.Context(), p, id, strings.TrimSpace(r.Header.Get(IdempotencyHeader)))
	if err != nil {
		h.logger.Warn("issue invoice rejected", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) APIVoid(w http.ResponseWriter, r *http.Request) {
	id, ok := apiInvoiceID(w, r)
	if !ok {
		return
	}
	var req VoidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.Void(r.Context(), p, id, req)
	if err != nil {
		h.logger.Warn("void invoice rejected", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func idempotencyKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.PostFormValue("idempotency_key"))
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid invoice ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func apiInvoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return 0, false
	}
	return id, true
}

// Helpers
func (h *Handler) renderEdit(w http.ResponseWriter, r *http.Request, inv *Invoice, b pricing.Breakdown, errs formErrors, status int) {
	h.render(w, r, "pages/invoice_edit.html", map[string]any{
		"Invoice":   inv,
		"Breakdown": b,
		"Lines":     SummaryLines(b),
		"Errors":    errs,
		"SaleTypes": []pricing.SaleType{pricing.SaleTypeRetail, pricing.SaleTypeTrade, pricing.SaleTypeCommercial},
		"VATRate":   inv.Data.Pricing.VATRate.Shift(2).String(),
	}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, tmpl string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)

	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}

	viewData := view.TemplateData{
		Title:       "Invoices",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: "/invoices",
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
