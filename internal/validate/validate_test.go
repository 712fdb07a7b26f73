package validate

import (
	"strings"
	"testing"

	"extensao.org/internal/apperr"
)

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"notblank"`
	Hours *int   `json:"hours" validate:"required,gte=0"`
	Kind  string `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestStruct(t *testing.T) {
	zero := 0
	if err := Struct(sample{Email: "a@b.co", Name: "A", Hours: &zero}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	neg := -1
	err := Struct(sample{Email: "nope", Name: "  ", Hours: &neg, Kind: "c"})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", err)
	}
	for _, want := range []string{"email must be a valid email", "name is required", "hours must be greater than or equal to 0", "kind must be one of [a b]"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %q", want, err.Error())
		}
	}

	if err := Struct(sample{Email: "a@b.co", Name: "x"}); err == nil || !strings.Contains(err.Error(), "hours is required") {
		t.Fatalf("expected missing hours, got %v", err)
	}
}
