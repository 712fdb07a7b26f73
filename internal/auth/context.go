package auth

import (
	"context"

	"extensao.org/internal/apperr"
)

type ctxKey int

const principalKey ctxKey = iota

// ContextWithPrincipal returns ctx carrying p.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller attached by the HTTP layer, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// RequirePrincipal is PrincipalFromContext for handlers that cannot serve anonymous callers.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	if p, ok := PrincipalFromContext(ctx); ok && p.UserID != "" {
		return p, nil
	}
	return nil, apperr.ErrUnauthenticated
}
