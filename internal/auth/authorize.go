package auth

import (
	"context"
	"strings"
	"sync"

	"extensao.org/internal/apperr"
	"extensao.org/internal/obs"
)

// Principal is the authenticated actor of one request. Identity fields are fixed once
// built; the resolved permission set is memoized on first use.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Roles  []string

	mu    sync.Mutex
	perms map[string]struct{}
}

// NewPrincipal constructs a principal with normalized, de-duplicated roles.
func NewPrincipal(userID, email, name string, roles []string) *Principal {
	return &Principal{
		UserID: strings.TrimSpace(userID),
		Email:  email,
		Name:   name,
		Roles:  dedupeRoles(roles),
	}
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	role = normalizeRole(role)
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PermissionSource resolves the union of permissions granted to a set of roles.
type PermissionSource interface {
	Permissions(ctx context.Context, roles []string) (map[string]struct{}, error)
}

// Resolver decides whether a principal may perform an action.
type Resolver struct {
	source PermissionSource
}

// NewResolver constructs a resolver over the injected permission source (a Catalog or a
// cache in front of one).
func NewResolver(source PermissionSource) *Resolver {
	return &Resolver{source: source}
}

// Authorize returns nil when p satisfies at least one of required for res (res may be nil).
// It returns apperr.ErrUnauthenticated for a missing principal, a *DeniedError when no
// rule matches, and an internal error when permissions cannot be loaded.
func (r *Resolver) Authorize(ctx context.Context, p *Principal, res Resource, required ...string) error {
	if p == nil || p.UserID == "" || len(p.Roles) == 0 {
		obs.AuthzDecisions.WithLabelValues("unauthenticated").Inc()
		return apperr.ErrUnauthenticated
	}

	if roleNamedInRequired(p, required) {
		obs.AuthzDecisions.WithLabelValues("allow").Inc()
		return nil
	}

	perms, err := r.permissions(ctx, p)
	if err != nil {
		obs.AuthzDecisions.WithLabelValues("error").Inc()
		return apperr.Internal("resolve permissions", err)
	}

	for _, token := range required {
		if !strings.Contains(token, ".") {
			continue
		}
		if _, ok := perms[token+":any"]; ok {
			obs.AuthzDecisions.WithLabelValues("allow").Inc()
			return nil
		}
		if _, ok := perms[token+":own"]; ok && res != nil && ownedBy(res, p.UserID) {
			obs.AuthzDecisions.WithLabelValues("allow").Inc()
			return nil
		}
		if _, ok := perms[token]; ok {
			obs.AuthzDecisions.WithLabelValues("allow").Inc()
			return nil
		}
	}

	obs.AuthzDecisions.WithLabelValues("deny").Inc()
	return &DeniedError{Required: append([]string(nil), required...)}
}

// Can is Authorize reduced to a boolean for optional, non-guarding checks. Load failures
// count as "cannot".
func (r *Resolver) Can(ctx context.Context, p *Principal, res Resource, required ...string) bool {
	return r.Authorize(ctx, p, res, required...) == nil
}

// roleNamedInRequired is the role-as-permission escape hatch: a required entry that literally
// names one of the principal's roles grants access without consulting the catalog. Only
// bootstrap roles such as "admin" should ever be listed this way.
func roleNamedInRequired(p *Principal, required []string) bool {
	for _, item := range required {
		if p.HasRole(item) {
			return true
		}
	}
	return false
}

func (r *Resolver) permissions(ctx context.Context, p *Principal) (map[string]struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.perms != nil {
		return p.perms, nil
	}
	if r.source == nil {
		return nil, ErrCatalogUnavailable
	}
	perms, err := r.source.Permissions(ctx, p.Roles)
	if err != nil {
		return nil, err
	}
	p.perms = perms
	return perms, nil
}
