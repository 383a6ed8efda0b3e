package report

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGotenberg(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"status":"up"}`)
	})
	mux.HandleFunc("/forms/chromium/convert/html", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "8.27", r.FormValue("paperWidth"))
		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "index.html", hdr.Filename)
		html, _ := io.ReadAll(f)
		if string(html) == "<broken>" {
			http.Error(w, "chromium failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7 "+string(html))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderHTML(t *testing.T) {
	client := NewClient(fakeGotenberg(t, true).URL + "/")
	pdf, err := client.RenderHTML(t.Context(), "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 <p>hi</p>", string(pdf))

	_, err = client.RenderHTML(t.Context(), "<broken>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium failed")
}

func TestPingRoute(t *testing.T) {
	for _, healthy := range []bool{true, false} {
		h := NewHandler(NewClient(fakeGotenberg(t, healthy).URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
		r := chi.NewRouter()
		r.Route("/report", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/ping", nil))
		if healthy {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		}
	}
}
