package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		status int
	}{
		{Invalid("field %s is required", "name"), KindValidation, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrUnauthenticated), KindAuthentication, http.StatusUnauthorized},
		{ErrForbidden, KindAuthorization, http.StatusForbidden},
		{NotFound("activity"), KindNotFound, http.StatusNotFound},
		{Conflict("duplicate enrollment"), KindConflict, http.StatusConflict},
		{ErrAuditFailed, KindInternal, http.StatusInternalServerError},
		{errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v)=%q, want %q", tc.err, got, tc.kind)
		}
		if got := Status(KindOf(tc.err)); got != tc.status {
			t.Fatalf("Status(%v)=%d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	err := Internal("load student", errors.New("dial tcp 10.0.0.1:5432: refused"))
	if got := Message(err); got != "internal error" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(fmt.Errorf("%w: disk full", ErrAuditFailed)); got != "internal error: audit recording failed" {
		t.Fatalf("unexpected audit message %q", got)
	}
	if got := Message(Invalid("hours must be >= 0")); got != "invalid input: hours must be >= 0" {
		t.Fatalf("unexpected validation message %q", got)
	}
}

func TestInternalKeepsDomainErrors(t *testing.T) {
	conflict := Conflict("email already registered")
	if got := Internal("register", conflict); got != conflict {
		t.Fatalf("domain error must pass through, got %v", got)
	}
	if Internal("noop", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
