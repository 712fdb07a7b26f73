package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"extensao.org/internal/apperr"
)

// MinPasswordLength applies to registration and password changes.
const MinPasswordLength = 8

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", apperr.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Invalid("password is too long")
		}
		return "", apperr.Internal("hash password", err)
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash. A mismatch is
// ErrInvalidCredentials.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
