package stock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/media"
	"github.com/forecourt/forecourt/internal/platform/xlsx"
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
		rbac.Middleware{Service: rbac.NewService(staticRole(role)), Logger: logger}, media.DefaultMaxBytes)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 3, DealerID: 1, Source: "session"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/stock", h.MountRoutes)
	r.Route("/api/stock", h.MountAPIRoutes)
	return r
}

func TestListPageShowsVehicles(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), 1, sampleInput())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock?make=Ford", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "AB12CDE")
	assert.Contains(t, body, "£8,995.00")
	assert.Contains(t, body, "/stock/export.xlsx?make=Ford")
}

func TestViewerCannotCreate(t *testing.T) {
	f := newFixture()
	form := url.Values{"registration": {"AB12CDE"}, "make": {"Ford"}, "model": {"Focus"}}
	req := httptest.NewRequest(http.MethodPost, "/stock", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.repo.vehicles)
}

func TestCreateFromForm(t *testing.T) {
	f := newFixture()
	form := url.Values{
		"registration":   {"ab12 cde"},
		"make":           {"Ford"},
		"model":          {"Focus"},
		"mileage":        {"42,000"},
		"purchase_price": {"£7,450.00"},
		"retail_price":   {"8995"},
	}
	req := httptest.NewRequest(http.MethodPost, "/stock", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, f.repo.vehicles, 1)
	v := f.repo.vehicles[1]
	assert.Equal(t, fmt.Sprintf("/stock/%d", v.ID), rec.Header().Get("Location"))
	assert.Equal(t, 42000, v.Mileage)
	assert.Equal(t, "7450", v.PurchasePrice.String())
}

func TestCreateFormRerendersOnBadPrice(t *testing.T) {
	f := newFixture()
	form := url.Values{"registration": {"AB12CDE"}, "make": {"Ford"}, "model": {"Focus"}, "retail_price": {"lots"}}
	req := httptest.NewRequest(http.MethodPost, "/stock", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter an amount like 8995.00")
	assert.Empty(t, f.repo.vehicles)
}

func TestUploadImageFromDetailPage(t *testing.T) {
	f := newFixture()
	v, err := f.svc.Create(context.Background(), 1, sampleInput())
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="front.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 20, 10))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/stock/%d/images", v.ID), &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router := newRouter(t, f, rbac.RoleSales)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, f.repo.images, 1)
	assert.Len(t, f.queue.ids, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/stock/%d", v.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://cdn.test/dealers/1/stock/")
}

func TestAPIReorderRejectsPartialOrder(t *testing.T) {
	f := newFixture()
	v, err := f.svc.Create(context.Background(), 1, sampleInput())
	require.NoError(t, err)
	ids := addImages(t, f, v.ID, 2)

	body := fmt.Sprintf(`{"imageIds":[%d]}`, ids[1])
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/stock/%d/images/order", v.ID), strings.NewReader(body))
	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleSales).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestExportDownload(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), 1, sampleInput())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newRouter(t, f, rbac.RoleViewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/export.xlsx", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsx.ContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}
