package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/shared"
)

// Authenticator resolves the request principal from the session cookie or an
// Authorization bearer token.
type Authenticator struct {
	Tokens *TokenIssuer
	Logger *slog.Logger
}

// Resolve returns the principal for r without enforcing anything.
func (a Authenticator) Resolve(r *http.Request) (shared.Principal, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || a.Tokens == nil {
			return shared.Principal{}, false
		}
		claims, err := a.Tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			if a.Logger != nil {
				a.Logger.Debug("bearer token rejected", slog.Any("error", err))
			}
			return shared.Principal{}, false
		}
		uid, _ := claims.UserID()
		return shared.Principal{UserID: uid, DealerID: claims.DealerID, Source: "token"}, true
	}
	sess := shared.SessionFromContext(r.Context())
	uid, ok := sess.UserID()
	if !ok {
		return shared.Principal{}, false
	}
	return shared.Principal{UserID: uid, DealerID: sess.DealerID(), Source: "session"}, true
}

// RequireUser rejects anonymous browser requests with a redirect to the login page.
func (a Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := a.Resolve(r)
		if !ok {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireAPIUser rejects anonymous API requests with a 401 problem document.
func (a Authenticator) RequireAPIUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := a.Resolve(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="forecourt"`)
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// LoadPrincipal attaches the principal when present and lets anonymous
// requests through; handlers with their own response contract check it.
func (a Authenticator) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.Resolve(r); ok {
			r = r.WithContext(shared.ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}
