package httpapi

import (
	"net/http"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/auth"
)

const (
	authHeader  = "Authorization"
	bearer      = "bearer "
	tokenCookie = "token"
	loginPath   = "/v1/auth/login"
)

// withAuth attaches the principal when a session token is presented. Requests without a
// token continue anonymously and the workflows reject them where authentication is
// required; a token that fails verification is rejected here.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || a.svc.Auth == nil || r.URL.Path == loginPath {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractToken(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.svc.Auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// extractToken prefers the Authorization header and falls back to the token cookie.
func extractToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		if !strings.HasPrefix(strings.ToLower(header), bearer) {
			return "", apperr.ErrUnauthenticated
		}
		token := strings.TrimSpace(header[len(bearer):])
		if token == "" {
			return "", auth.ErrInvalidToken
		}
		return token, nil
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return strings.TrimSpace(c.Value), nil
	}
	return "", nil
}

// principal returns the authenticated caller or nil.
func principal(r *http.Request) *auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
