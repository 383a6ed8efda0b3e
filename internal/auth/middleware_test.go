package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/shared"
)

func principalEcho(t *testing.T, want shared.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, want, p)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAPIUserAcceptsBearerToken(t *testing.T) {
	tokens := NewTokenIssuer("secret", time.Hour)
	raw, _, err := tokens.Issue(&User{ID: 5, DealerID: 9, Role: "manager"})
	require.NoError(t, err)

	a := Authenticator{Tokens: tokens}
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	a.RequireAPIUser(principalEcho(t, shared.Principal{UserID: 5, DealerID: 9, Source: "token"})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAPIUserRejectsForeignToken(t *testing.T) {
	other := NewTokenIssuer("other-secret", time.Hour)
	raw, _, err := other.Issue(&User{ID: 5})
	require.NoError(t, err)

	a := Authenticator{Tokens: NewTokenIssuer("secret", time.Hour)}
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	a.RequireAPIUser(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestTokenExpiry(t *testing.T) {
	tokens := NewTokenIssuer("secret", time.Minute)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issued }
	raw, _, err := tokens.Issue(&User{ID: 3})
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireUserRedirectsAnonymous(t *testing.T) {
	a := Authenticator{Tokens: NewTokenIssuer("secret", time.Hour)}
	rec := httptest.NewRecorder()
	a.RequireUser(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestLoadPrincipalPassesAnonymousThrough(t *testing.T) {
	a := Authenticator{}
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := shared.PrincipalFromContext(r.Context())
		assert.False(t, ok)
	})
	a.LoadPrincipal(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/upload/license", nil))
	assert.True(t, called)
}
