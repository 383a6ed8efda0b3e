package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/auth"
	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/observability"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/stock"
	"github.com/forecourt/forecourt/internal/storage"
	"github.com/forecourt/forecourt/internal/uploads"
	"github.com/forecourt/forecourt/internal/view"
	"github.com/forecourt/forecourt/jobs"
)

type staticRole string

func (s staticRole) RoleOf(ctx context.Context, userID int64) (string, error) {
	return string(s), nil
}

type dealerStub struct{}

func (dealerStub) Get(ctx context.Context, id int64) (*dealers.Dealer, error) {
	return &dealers.Dealer{ID: id, Name: "Leeds Motors"}, nil
}

type stockStub struct{}

func (stockStub) CountByStatus(ctx context.Context, dealerID int64) (map[stock.Status]int, error) {
	return map[stock.Status]int{stock.StatusInStock: 7, stock.StatusSold: 2}, nil
}

type invoiceStub struct{}

func (invoiceStub) List(ctx context.Context, req invoices.ListInvoicesRequest) ([]invoices.Invoice, int, error) {
	if req.Status == invoices.StatusDraft {
		return nil, 3, nil
	}
	return []invoices.Invoice{{ID: 4, Number: "INV-2026-00004", Status: invoices.StatusIssued, CustomerName: "Ms Jane Doe", Registration: "AB12CDE", Total: decimal.NewFromInt(8995)}}, 1, nil
}

type triggerStub struct{}

func (triggerStub) Trigger(ctx context.Context, taskType string, payload []byte) (*asynq.TaskInfo, error) {
	task, err := jobs.NewTask(taskType, payload)
	if err != nil {
		return nil, err
	}
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type uploadDealers struct{}

func (uploadDealers) ForUser(ctx context.Context, userID int64) (*dealers.Dealer, error) {
	if userID != 3 {
		return nil, shared.ErrNotFound
	}
	return &dealers.Dealer{ID: 1, Name: "Leeds Motors"}, nil
}

func (uploadDealers) SetLogo(ctx context.Context, id int64, key string) error { return nil }

type uploadRepo struct{}

func (uploadRepo) Record(ctx context.Context, doc uploads.Document) (uploads.Document, error) {
	doc.ID = 1
	return doc, nil
}

type routerHarness struct {
	router http.Handler
	tokens *auth.TokenIssuer
	redis  *miniredis.Miniredis
}

func newRouterHarness(t *testing.T, role string) routerHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(rdb, "forecourt_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	tokens := auth.NewTokenIssuer("jwt-secret", time.Hour)
	rbacService := rbac.NewService(staticRole(role))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, StoragePublicURL: "https://storage.googleapis.com"}
	metrics := observability.NewMetrics()
	uploadService := uploads.NewService(uploadRepo{}, uploadDealers{}, storage.NewMemoryStore("https://cdn.test"), 0, metrics, logger)

	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		Authenticator:      auth.Authenticator{Tokens: tokens, Logger: logger},
		AuthHandler:        auth.NewHandler(logger, nil, templates, sessions, csrf),
		JobHandler:         jobs.NewHandler(nil, triggerStub{}, rbacMiddleware, logger),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		UploadHandler:      uploads.NewHandler(logger, uploadService, rbacMiddleware),
		Dashboard: &Dashboard{
			Dealers:   dealerStub{},
			Stock:     stockStub{},
			Invoices:  invoiceStub{},
			Templates: templates,
			CSRF:      csrf,
			Logger:    logger,
			AppEnv:    cfg.AppEnv,
		},
		Metrics: metrics,
	})
	return routerHarness{router: router, tokens: tokens, redis: mr}
}

func (h routerHarness) bearer(t *testing.T, role string) string {
	t.Helper()
	return h.bearerFor(t, 3, role)
}

func (h routerHarness) bearerFor(t *testing.T, userID int64, role string) string {
	t.Helper()
	token, _, err := h.tokens.Issue(&auth.User{ID: userID, DealerID: 1, Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

// loggedInCookie stores a session bound to user 3 and returns its cookie.
func (h routerHarness) loggedInCookie(t *testing.T) *http.Cookie {
	t.Helper()
	require.NoError(t, h.redis.Set("forecourt:session:sess-3", `{"values":{},"user_id":3,"dealer_id":1}`))
	return &http.Cookie{Name: "forecourt_session", Value: "sess-3"}
}

func (h routerHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicEndpoints(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleViewer)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = h.do(httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	rec = h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "img-src 'self' data: https://storage.googleapis.com")
}

func TestRouterAnonymousAccess(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleViewer)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))

	rec = h.do(httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestRouterDashboard(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleViewer)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", h.bearer(t, rbac.RoleViewer))

	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Leeds Motors")
	assert.Contains(t, body, "INV-2026-00004")
	assert.Contains(t, body, "<strong>7</strong> in stock")
	assert.Contains(t, body, "<strong>3</strong> draft invoices")
}

func TestRouterAPIWithBearer(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleManager)

	req := httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil)
	req.Header.Set("Authorization", h.bearer(t, rbac.RoleManager))
	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var perms struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perms))
	assert.Contains(t, perms.Permissions, rbac.PermJobsTrigger)

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/"+jobs.TaskIdempotencyCleanup, strings.NewReader(`{}`))
	req.Header.Set("Authorization", h.bearer(t, rbac.RoleManager))
	rec = h.do(req)
	assert.Equal(t, http.StatusAccepted, rec.Code, "bearer requests skip csrf")
}

func TestRouterCSRFRequiredForSessionPosts(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleManager)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+jobs.TaskIdempotencyCleanup, nil)
	req.AddCookie(h.loggedInCookie(t))
	rec := h.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodPost, "/api/jobs/"+jobs.TaskIdempotencyCleanup, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "anonymous api posts reach authentication")

	rec = h.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code, "html form posts always need a token")
}

var licensePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func licenseRequest(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="licence.pdf"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload/license", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadEnvelope(t *testing.T, rec *httptest.ResponseRecorder) uploads.Response {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp uploads.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRouterLicenseUploadEnvelopes(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleSales)

	rec := h.do(licenseRequest(t, "application/pdf", licensePDF))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, uploads.Response{Message: "Unauthorized"}, uploadEnvelope(t, rec))

	req := licenseRequest(t, "application/pdf", licensePDF)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = h.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, uploadEnvelope(t, rec).Success)

	req = licenseRequest(t, "application/pdf", licensePDF)
	req.Header.Set("Authorization", h.bearerFor(t, 42, rbac.RoleSales))
	rec = h.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, uploadEnvelope(t, rec).Success)

	req = licenseRequest(t, "text/plain", []byte("hello"))
	req.Header.Set("Authorization", h.bearer(t, rbac.RoleSales))
	rec = h.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, uploadEnvelope(t, rec).Message, "Invalid file type")

	req = licenseRequest(t, "application/pdf", licensePDF)
	req.Header.Set("Authorization", h.bearer(t, rbac.RoleSales))
	rec = h.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := uploadEnvelope(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "application/pdf", resp.FileType)
}

func TestRouterLicenseUploadFromSessionNeedsCSRF(t *testing.T) {
	h := newRouterHarness(t, rbac.RoleSales)
	req := licenseRequest(t, "application/pdf", licensePDF)
	req.AddCookie(h.loggedInCookie(t))
	rec := h.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFExempt(t *testing.T) {
	cases := []struct {
		name     string
		method   string
		path     string
		auth     string
		loggedIn bool
		want     bool
	}{
		{"get", http.MethodGet, "/stock", "", false, true},
		{"form post", http.MethodPost, "/stock", "", false, false},
		{"bearer post", http.MethodPost, "/api/invoices", "Bearer abc", true, true},
		{"basic auth post", http.MethodPost, "/invoices", "Basic abc", false, false},
		{"token endpoint", http.MethodPost, "/api/auth/token", "", false, true},
		{"anonymous api post", http.MethodPost, "/api/upload/license", "", false, true},
		{"session api post", http.MethodPost, "/api/upload/license", "", true, false},
		{"anonymous login post", http.MethodPost, "/auth/login", "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			if tc.loggedIn {
				sess := &shared.Session{ID: "sess-3"}
				sess.SetPrincipal(3, 1)
				req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
			}
			assert.Equal(t, tc.want, csrfExempt(req))
		})
	}
}
