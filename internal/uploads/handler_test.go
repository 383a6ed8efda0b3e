package uploads

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
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
)

type staticRole string

func (s staticRole) RoleOf(ctx context.Context, userID int64) (string, error) {
	return string(s), nil
}

func newRouter(f fixture, p *shared.Principal) http.Handler {
	return newRouterAs(f, p, rbac.RoleSales)
}

func newRouterAs(f fixture, p *shared.Principal, role string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, rbac.Middleware{Service: rbac.NewService(staticRole(role)), Logger: logger})
	r := chi.NewRouter()
	if p != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), *p)))
			})
		})
	}
	r.Route("/api/upload", h.MountRoutes)
	return r
}

func multipartRequest(t *testing.T, path, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="scan.bin"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLicenseUploadSucceeds(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	newRouter(f, &user).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "application/pdf", pdfBytes, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "License uploaded successfully", resp.Message)
	assert.Contains(t, resp.FileURL, "https://cdn.test/dealers/1/license/")
	assert.Equal(t, "scan.bin", resp.FileName)
	assert.Equal(t, int64(len(pdfBytes)), resp.FileSize)
	assert.Equal(t, "application/pdf", resp.FileType)
}

func TestLicenseUploadStatusCodes(t *testing.T) {
	f := newFixture()

	rec := httptest.NewRecorder()
	newRouter(f, nil).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "application/pdf", pdfBytes, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, Response{Message: "Unauthorized"}, decode(t, rec))

	rec = httptest.NewRecorder()
	newRouterAs(f, &user, rbac.RoleViewer).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "application/pdf", pdfBytes, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, decode(t, rec).Success)
	assert.Empty(t, f.repo.docs)

	rec = httptest.NewRecorder()
	stranger := shared.Principal{UserID: 42, DealerID: 9}
	newRouter(f, &stranger).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "application/pdf", pdfBytes, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decode(t, rec).Success)

	rec = httptest.NewRecorder()
	newRouter(f, &user).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "text/plain", []byte("hello"), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Message, "Invalid file type")

	rec = httptest.NewRecorder()
	newRouter(f, &user).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec).Message)

	f.store.FailPut = assert.AnError
	rec = httptest.NewRecorder()
	newRouter(f, &user).ServeHTTP(rec, multipartRequest(t, "/api/upload/license", "application/pdf", pdfBytes, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to upload file", decode(t, rec).Message)
}

func TestDocumentUploadUsesCategoryField(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	newRouter(f, &user).ServeHTTP(rec, multipartRequest(t, "/api/upload/document", "image/png", pngBytes(t), map[string]string{"category": "logo"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.repo.docs, 1)
	assert.Equal(t, CategoryLogo, f.repo.docs[0].Category)
	assert.Equal(t, f.repo.docs[0].ObjectKey, f.dealers.logo[1])
}
