package auth

import (
	"fmt"
	"strings"

	"extensao.org/internal/apperr"
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	// ErrCatalogUnavailable means grants were never loaded; decisions must not default to allow.
	ErrCatalogUnavailable = fmt.Errorf("%w: permission catalog not loaded", apperr.ErrInternal)
)

// DeniedError is returned when an authenticated principal lacks every required token.
type DeniedError struct {
	Required []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: requires one of [%s]", apperr.ErrForbidden, strings.Join(e.Required, ", "))
}

func (e *DeniedError) Unwrap() error { return apperr.ErrForbidden }
