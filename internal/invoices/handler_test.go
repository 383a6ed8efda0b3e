package invoices

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/view"
)

type staticRole string

func (s staticRole) RoleOf(ctx context.Context, userID int64) (string, error) {
	return string(s), nil
}

func newRouter(t *testing.T, f fixture, role string) http.Handler {
	t.Helper()
	templates, err := view.NewEngine()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, templates, shared.NewCSRFManager("secret"),
		rbac.Middleware{Service: rbac.NewService(staticRole(role)), Logger: logger})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), principal)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/invoices", h.MountRoutes)
	r.Route("/api/invoices", h.MountAPIRoutes)
	return r
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAPICalculateReturnsLines(t *testing.T) {
	f := newFixture()
	body := `{"meta":{"saleType":"Commercial","invoiceTo":"Customer"},"pricing":{"salePrice":"10000"},"delivery":{"type":"collection"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Breakdown struct {
			VATAmount string `json:"vatAmount"`
			Subtotal  string `json:"subtotal"`
		} `json:"breakdown"`
		Lines []Line `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "2000", got.Breakdown.VATAmount)
	assert.Equal(t, "12000", got.Breakdown.Subtotal)
	assert.NotEmpty(t, got.Lines)
}

func TestAPICalculateRejectsNegativePrice(t *testing.T) {
	f := newFixture()
	body := `{"meta":{"saleType":"Retail","invoiceTo":"Customer"},"pricing":{"salePrice":"-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestAPICalculateRoundsAmountsToPence(t *testing.T) {
	f := newFixture()
	body := `{"meta":{"saleType":"Retail","invoiceTo":"Customer"},"pricing":{"salePrice":"999.999"},` +
		`"deposit":{"amountPaid":"100.004"},"payments":{"card":[{"amount":"100.004"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Breakdown struct {
			SalePricePostDiscount string `json:"salePricePostDiscount"`
			BalanceDue            string `json:"balanceDue"`
		} `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "1000", got.Breakdown.SalePricePostDiscount)
	assert.Equal(t, "800", got.Breakdown.BalanceDue)
}

func TestParseMoneyRoundsToPence(t *testing.T) {
	cases := map[string]string{
		"£1,250.555": "1250.56",
		"99.994":     "99.99",
		"":           "0",
		" 12 ":       "12",
	}
	for raw, want := range cases {
		got, err := parseMoney(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%q -> %s", raw, got)
	}
	_, err := parseMoney("twelve")
	assert.Error(t, err)
}

func TestAPICalculateRejectsUnknownDeliveryType(t *testing.T) {
	f := newFixture()
	body := `{"meta":{"saleType":"Retail","invoiceTo":"Customer"},"pricing":{"salePrice":"5000","deliveryCost":"150"},"delivery":{"type":"courier"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/calculate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Delivery type must be collection or delivery")
}

func TestCreateDraftFromFormRedirectsToEdit(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, postForm("/invoices", url.Values{"vehicle_id": {"10"}, "customer_id": {"20"}}))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/invoices/1/edit", rec.Header().Get("Location"))
	assert.Len(t, f.repo.invoices, 1)
}

func TestEditFormRecalculatesWithoutSaving(t *testing.T) {
	f := newFixture()
	inv := f.draft(t)

	form := url.Values{
		"action":               {"calculate"},
		"sale_type":            {"Commercial"},
		"invoice_to":           {"Customer"},
		"vehicle_registration": {"AB12CDE"},
		"sale_price":           {"£10,000.00"},
	}
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, postForm("/invoices/1/edit", form))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "£2,000.00")
	assert.Contains(t, body, "£12,000.00")
	assert.True(t, f.repo.invoices[inv.ID].Total.Equal(dec("8995")))
}

func TestEditFormRejectsBadAmount(t *testing.T) {
	f := newFixture()
	f.draft(t)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, postForm("/invoices/1/edit", url.Values{"sale_price": {"lots"}}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter an amount like 1250.00")
}

func TestEditFormSavesDraft(t *testing.T) {
	f := newFixture()
	f.draft(t)

	form := url.Values{
		"sale_type":               {"Retail"},
		"invoice_to":              {"Customer"},
		"vehicle_registration":    {"ab12 cde"},
		"customer_first_name":     {"Jane"},
		"customer_surname":        {"Doe"},
		"sale_price":              {"8750"},
		"card_amount":             {"250", ""},
		"card_date":               {"2026-03-14", ""},
		"card_reference":          {"AUTH1", ""},
		"customer_addon_name":     {"Mats", ""},
		"customer_addon_cost":     {"45", ""},
		"customer_addon_discount": {"", ""},
		"customer_addon_enabled":  {"1", "1"},
	}
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, postForm("/invoices/1/edit", form))

	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	saved := f.repo.invoices[1]
	assert.Equal(t, "AB12CDE", saved.Registration)
	require.Len(t, saved.Data.Payments.Card, 1)
	require.Len(t, saved.Data.Addons.Customer.Dynamic, 1)
	assert.True(t, saved.Total.Equal(dec("8795")), saved.Total.String())
	assert.True(t, saved.BalanceDue.Equal(dec("8545")), saved.BalanceDue.String())
}

func TestIssueRequiresPermission(t *testing.T) {
	f := newFixture()
	f.draft(t)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, postForm("/invoices/1/issue", url.Values{}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, StatusDraft, f.repo.invoices[1].Status)
}

func TestAPIIssueHonoursIdempotencyHeader(t *testing.T) {
	f := newFixture()
	f.draft(t)
	router := newRouter(t, f, rbac.RoleManager)

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices/1/issue", nil)
		req.Header.Set(IdempotencyHeader, "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"number":"INV-2026-00001"`)
	}
	assert.Equal(t, 1, f.repo.seq[2026])
}

func TestShowPageOffersIssueForDraft(t *testing.T) {
	f := newFixture()
	f.draft(t)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleManager).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "DRAFT-000001")
	assert.Contains(t, body, `name="idempotency_key"`)
	assert.Contains(t, body, "/invoices/1/pdf?renderer=native")
	assert.Contains(t, body, "Leeds Motors")
}

func TestPDFDownload(t *testing.T) {
	f := newFixture()
	f.draft(t)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/1/pdf?renderer=native", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-native-DRAFT-000001", rec.Body.String())
}

func TestListPageFiltersByStatus(t *testing.T) {
	f := newFixture()
	f.draft(t)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices?status=issued", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No invoices match")

	rec = httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
