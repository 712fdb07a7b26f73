package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/obs"
)

// Auditor records audit entries.
type Auditor interface {
	Record(ctx context.Context, rec audit.Record) (string, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal *Principal
}

// Service authenticates users and verifies session tokens.
type Service struct {
	accounts AccountStore
	tokens   *TokenIssuer
	audit    Auditor
}

// NewService constructs Service.
func NewService(accounts AccountStore, tokens *TokenIssuer, auditor Auditor) *Service {
	return &Service{accounts: accounts, tokens: tokens, audit: auditor}
}

// Login verifies credentials and issues a session token. Both unknown emails and wrong
// passwords are audited and reported as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, apperr.Invalid("email and password are required")
	}

	acct, err := s.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return Session{}, apperr.Internal("find account", err)
		}
		if _, aerr := s.audit.Record(ctx, audit.Record{
			Entity:      audit.EntityAuth,
			Action:      "auth.login_failed",
			After:       map[string]string{"email": email},
			Description: "login failed: unknown email",
		}); aerr != nil {
			return Session{}, aerr
		}
		return Session{}, ErrInvalidCredentials
	}

	if err := VerifyPassword(acct.PasswordHash, password); err != nil {
		if _, aerr := s.audit.Record(ctx, audit.Record{
			ActorID:     acct.ID,
			Entity:      "user",
			EntityID:    acct.ID,
			Action:      "auth.login_failed",
			Description: "login failed: wrong password",
		}); aerr != nil {
			return Session{}, aerr
		}
		return Session{}, ErrInvalidCredentials
	}

	roles, err := s.accounts.UserRoles(ctx, acct.ID)
	if err != nil {
		return Session{}, apperr.Internal("load roles", err)
	}
	principal := NewPrincipal(acct.ID, acct.Email, acct.Name, roles)
	token, exp, err := s.tokens.Issue(principal.UserID, principal.Roles)
	if err != nil {
		return Session{}, apperr.Internal("issue token", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     acct.ID,
		Entity:      "user",
		EntityID:    acct.ID,
		Action:      "auth.login_success",
		After:       map[string]any{"roles": principal.Roles},
		Description: "login succeeded",
	}); err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, Principal: principal}, nil
}

// Authenticate verifies a session token and reloads the user's current roles.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	acct, err := s.accounts.FindAccount(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, apperr.Internal("find account", err)
	}
	roles, err := s.accounts.UserRoles(ctx, acct.ID)
	if err != nil {
		return nil, apperr.Internal("load roles", err)
	}
	if !sameRoles(claims.Roles, roles) {
		obs.Logger().Debug("token roles differ from stored roles", zap.String("user_id", acct.ID))
	}
	return NewPrincipal(acct.ID, acct.Email, acct.Name, roles), nil
}

// Logout audits the end of a session. Tokens are stateless and stay valid until expiry.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	if p == nil || p.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	_, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "user",
		EntityID:    p.UserID,
		Action:      "auth.logout",
		Description: "logout",
	})
	return err
}

func sameRoles(a, b []string) bool {
	a, b = dedupeRoles(a), dedupeRoles(b)
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, r := range a {
		set[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
