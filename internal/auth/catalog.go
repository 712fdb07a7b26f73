package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// GrantSource loads the role to permission-token mapping.
type GrantSource interface {
	LoadGrants(ctx context.Context) (map[string][]string, error)
}

// StaticGrants is an in-process GrantSource.
type StaticGrants map[string][]string

func (g StaticGrants) LoadGrants(context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(g))
	for role, tokens := range g {
		out[role] = append([]string(nil), tokens...)
	}
	return out, nil
}

// Catalog holds the role/permission grants. It is loaded once at startup and refreshed
// explicitly; lookups never hit the source.
type Catalog struct {
	source GrantSource

	mu      sync.RWMutex
	grants      map[string]map[string]struct{}
	version     uint64
	fingerprint string
	loaded      bool
}

// NewCatalog constructs an empty catalog. Call Refresh before serving decisions.
func NewCatalog(source GrantSource) *Catalog {
	return &Catalog{source: source}
}

// Refresh reloads grants from the source. On failure the previous grants stay active.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.source == nil {
		return errors.New("auth: catalog has no grant source")
	}
	raw, err := c.source.LoadGrants(ctx)
	if err != nil {
		return fmt.Errorf("auth: load grants: %w", err)
	}
	grants := make(map[string]map[string]struct{}, len(raw))
	for role, tokens := range raw {
		role = normalizeRole(role)
		if role == "" {
			continue
		}
		set := grants[role]
		if set == nil {
			set = make(map[string]struct{}, len(tokens))
			grants[role] = set
		}
		for _, tok := range tokens {
			if tok = strings.TrimSpace(tok); tok != "" {
				set[tok] = struct{}{}
			}
		}
	}

	fp := fingerprint(grants)
	c.mu.Lock()
	c.grants = grants
	c.fingerprint = fp
	c.version++
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Permissions returns the union of the permissions granted to roles. Unknown roles add nothing.
func (c *Catalog) Permissions(_ context.Context, roles []string) (map[string]struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrCatalogUnavailable
	}
	out := make(map[string]struct{})
	for _, role := range roles {
		for tok := range c.grants[normalizeRole(role)] {
			out[tok] = struct{}{}
		}
	}
	return out, nil
}

// KnownRole reports whether role exists in the catalog.
func (c *Catalog) KnownRole(role string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.grants[normalizeRole(role)]
	return ok
}

// Roles lists the catalog roles in sorted order.
func (c *Catalog) Roles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.grants))
	for role := range c.grants {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Version increases on every successful Refresh.
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Fingerprint is a digest of the loaded grants. Unlike Version it is stable across
// processes, so two processes share cache entries only when their grants are identical.
func (c *Catalog) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint
}

func fingerprint(grants map[string]map[string]struct{}) string {
	roles := make([]string, 0, len(grants))
	for role := range grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	h := sha256.New()
	for _, role := range roles {
		tokens := make([]string, 0, len(grants[role]))
		for tok := range grants[role] {
			tokens = append(tokens, tok)
		}
		sort.Strings(tokens)
		fmt.Fprintf(h, "%s=%s\n", role, strings.Join(tokens, ","))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}
