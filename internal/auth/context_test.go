package auth

import (
	"context"
	"errors"
	"testing"

	"extensao.org/internal/apperr"
)

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("expected no principal")
	}
	if _, err := RequirePrincipal(ctx); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, ok := PrincipalFromContext(ContextWithPrincipal(ctx, nil)); ok {
		t.Fatal("nil principal must not count as present")
	}

	p := NewPrincipal("u1", "a@b.c", "A", []string{"student"})
	got, err := RequirePrincipal(ContextWithPrincipal(ctx, p))
	if err != nil || got != p {
		t.Fatalf("principal not returned: %v %v", got, err)
	}
}
