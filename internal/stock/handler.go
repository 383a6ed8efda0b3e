package stock

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/platform/xlsx"
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
	maxBytes  int64
}

func NewHandler(
	logger *slog.Logger,
	service *Service,
	templates *view.Engine,
	csrf *shared.CSRFManager,
	rbac rbac.Middleware,
	maxBytes int64,
) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		rbac:      rbac,
		maxBytes:  maxBytes,
	}
}

type formErrors map[string]string

const perPageMax = 100

func listRequest(r *http.Request, dealerID int64) ListVehiclesRequest {
	q := r.URL.Query()
	return ListVehiclesRequest{
		DealerID: dealerID,
		Status:   Status(q.Get("status")),
		Make:     q.Get("make"),
		Search:   q.Get("search"),
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageFromQuery(r.URL.Query(), perPageMax)
	req := listRequest(r, p.DealerID)
	req.Limit = perPage
	req.Offset = (page - 1) * perPage

	vehicles, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list vehicles failed", "error", err, "dealerID", p.DealerID)
		http.Error(w, "Failed to load stock", httpx.StatusFor(err))
		return
	}
	counts := map[string]int{}
	byStatus, err := h.service.CountByStatus(r.Context(), p.DealerID)
	if err != nil {
		h.logger.Warn("count vehicles failed", "error", err)
	}
	for status, n := range byStatus {
		counts[string(status)] = n
	}

	filters := url.Values{"status": {string(req.Status)}, "make": {req.Make}, "search": {req.Search}}
	h.render(w, r, "pages/stock_list.html", map[string]any{
		"Vehicles":   vehicles,
		"Filters":    req,
		"Counts":     counts,
		"ExportURL":  "/stock/export.xlsx?" + filters.Encode(),
		"Pagination": shared.NewPageView(shared.NewPagination(page, perPage, total), filters),
	}, http.StatusOK)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="stock.xlsx"`)
	if err := h.service.ExportXLSX(r.Context(), w, listRequest(r, p.DealerID)); err != nil {
		h.logger.Error("stock export failed", "error", err, "dealerID", p.DealerID)
		w.Header().Del("Content-Disposition")
		httpx.RespondError(w, err)
	}
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	vehicle, err := h.service.Get(r.Context(), p.DealerID, id)
	if err != nil {
		h.logger.Error("get vehicle failed", "error", err, "id", id)
		http.Error(w, "Vehicle not found", httpx.StatusFor(err))
		return
	}
	h.render(w, r, "pages/stock_detail.html", map[string]any{
		"Vehicle": vehicle,
		"Errors":  formErrors{},
	}, http.StatusOK)
}

func (h *Handler) ShowForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/stock_form.html", map[string]any{
		"Errors":  formErrors{},
		"Vehicle": &Vehicle{Status: StatusInStock},
	}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	in, errs := inputFromForm(r)
	if len(errs) > 0 {
		h.renderForm(w, r, &Vehicle{}, in, errs, http.StatusBadRequest)
		return
	}

	vehicle, err := h.service.Create(r.Context(), p.DealerID, in)
	if err != nil {
		h.logger.Error("create vehicle failed", "error", err)
		h.renderForm(w, r, &Vehicle{}, in, formErrors{"general": shared.UserSafeMessage(err)}, httpx.StatusFor(err))
		return
	}
	h.logger.Info("vehicle created", "id", vehicle.ID, "registration", vehicle.Registration, "dealerID", p.DealerID)
	h.redirectWithFlash(w, r, fmt.Sprintf("/stock/%d", vehicle.ID), "success", vehicle.Registration+" added to stock")
}

func (h *Handler) ShowEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	vehicle, err := h.service.Get(r.Context(), p.DealerID, id)
	if err != nil {
		h.logger.Error("get vehicle failed", "error", err, "id", id)
		http.Error(w, "Vehicle not found", httpx.StatusFor(err))
		return
	}
	h.render(w, r, "pages/stock_form.html", map[string]any{
		"Errors":  formErrors{},
		"Vehicle": vehicle,
	}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	in, errs := inputFromForm(r)
	if len(errs) > 0 {
		h.renderForm(w, r, &Vehicle{ID: id}, in, errs, http.StatusBadRequest)
		return
	}

	vehicle, err := h.service.Update(r.Context(), p.DealerID, id, in)
	if err != nil {
		h.logger.Error("update vehicle failed", "error", err, "id", id)
		if vehicle == nil {
			http.Error(w, shared.UserSafeMessage(err), httpx.StatusFor(err))
			return
		}
		h.renderForm(w, r, vehicle, in, formErrors{"general": shared.UserSafeMessage(err)}, httpx.StatusFor(err))
		return
	}
	h.redirectWithFlash(w, r, fmt.Sprintf("/stock/%d", id), "success", "Vehicle updated successfully")
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	back := fmt.Sprintf("/stock/%d", id)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.logger.Warn("parse image upload failed", "error", err, "vehicleID", id)
		h.redirectWithFlash(w, r, back, "error", "Upload could not be read")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.redirectWithFlash(w, r, back, "error", "Choose an image to upload")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		h.logger.Error("read image upload failed", "error", err)
		h.redirectWithFlash(w, r, back, "error", "Upload could not be read")
		return
	}

	img, err := h.service.AddImage(r.Context(), p.DealerID, id, NewImage{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.logger.Error("add image failed", "error", err, "vehicleID", id)
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.logger.Info("stock image uploaded", "vehicleID", id, "imageID", img.ID, "key", img.ObjectKey)
	h.redirectWithFlash(w, r, back, "success", "Image uploaded")
}

// ReorderImages reads a comma separated "order" field of image ids.
func (h *Handler) ReorderImages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	back := fmt.Sprintf("/stock/%d", id)

	ids, err := parseIDList(r.PostFormValue("order"))
	if err != nil {
		h.redirectWithFlash(w, r, back, "error", "Image order is not valid")
		return
	}
	if _, err := h.service.ReorderImages(r.Context(), p.DealerID, id, ids); err != nil {
		h.logger.Error("reorder images failed", "error", err, "vehicleID", id)
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Image order saved")
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	imageID, err := strconv.ParseInt(chi.URLParam(r, "imageID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid image ID", http.StatusBadRequest)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	back := fmt.Sprintf("/stock/%d", id)
	if err := h.service.DeleteImage(r.Context(), p.DealerID, id, imageID); err != nil {
		h.logger.Error("delete image failed", "error", err, "vehicleID", id, "imageID", imageID)
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Image removed")
}

// API

func (h *Handler) APIList(w http.ResponseWriter, r *http.Request) {
	p, _ := shared.PrincipalFromContext(r.Context())
	page, perPage := shared.PageFromQuery(r.URL.Query(), perPageMax)
	req := listRequest(r, p.DealerID)
	req.Limit = perPage
	req.Offset = (page - 1) * perPage

	vehicles, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list vehicles failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": vehicles, "total": total, "page": page, "perPage": perPage})
}

func (h *Handler) APIGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	vehicle, err := h.service.Get(r.Context(), p.DealerID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vehicle)
}

type reorderRequest struct {
	ImageIDs []int64 `json:"imageIds"`
}

func (h *Handler) APIReorderImages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid vehicle id")
		return
	}
	var req reorderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	images, err := h.service.ReorderImages(r.Context(), p.DealerID, id, req.ImageIDs)
	if err != nil {
		h.logger.Warn("reorder images rejected", "error", err, "vehicleID", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"images": images})
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.NewReplacer("£", "", ",", "").Replace(raw))
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func inputFromForm(r *http.Request) (VehicleInput, formErrors) {
	errs := formErrors{}
	in := VehicleInput{
		Registration: r.PostFormValue("registration"),
		VIN:          r.PostFormValue("vin"),
		Make:         r.PostFormValue("make"),
		Model:        r.PostFormValue("model"),
		Derivative:   r.PostFormValue("derivative"),
		Colour:       r.PostFormValue("colour"),
		FuelType:     r.PostFormValue("fuel_type"),
		Transmission: r.PostFormValue("transmission"),
		Status:       Status(r.PostFormValue("status")),
		Notes:        r.PostFormValue("notes"),
	}
	if v := strings.TrimSpace(r.PostFormValue("year")); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			errs["year"] = "Year must be a number"
		}
		in.Year = year
	}
	if v := strings.TrimSpace(r.PostFormValue("mileage")); v != "" {
		mileage, err := strconv.Atoi(strings.ReplaceAll(v, ",", ""))
		if err != nil {
			errs["mileage"] = "Mileage must be a whole number"
		}
		in.Mileage = mileage
	}
	var err error
	if in.PurchasePrice, err = parseMoney(r.PostFormValue("purchase_price")); err != nil {
		errs["purchase_price"] = "Enter an amount like 7450.00"
	}
	if in.RetailPrice, err = parseMoney(r.PostFormValue("retail_price")); err != nil {
		errs["retail_price"] = "Enter an amount like 8995.00"
	}
	return in, errs
}

func (h *Handler) vehicleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid vehicle ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// Helpers
func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, draft *Vehicle, in VehicleInput, errs formErrors, status int) {
	apply(draft, in)
	h.render(w, r, "pages/stock_form.html", map[string]any{
		"Errors":  errs,
		"Vehicle": draft,
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
		Title:       "Stock",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: "/stock",
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
