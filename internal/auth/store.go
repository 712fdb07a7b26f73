package auth

import "context"

// Account is the credential view of a user.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// AccountStore describes the persistence operations required by the auth subsystem.
// Lookups of a missing account return an error wrapping apperr.ErrNotFound.
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
	FindAccount(ctx context.Context, id string) (Account, error)
	UserRoles(ctx context.Context, userID string) ([]string, error)
}
