package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
)

type fakeAccounts struct {
	accounts map[string]Account
	roles    map[string][]string
	err      error
}

func (f *fakeAccounts) FindAccountByEmail(_ context.Context, email string) (Account, error) {
	if f.err != nil {
		return Account{}, f.err
	}
	for _, a := range f.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return Account{}, apperr.NotFound("user")
}

func (f *fakeAccounts) FindAccount(_ context.Context, id string) (Account, error) {
	if f.err != nil {
		return Account{}, f.err
	}
	a, ok := f.accounts[id]
	if !ok {
		return Account{}, apperr.NotFound("user")
	}
	return a, nil
}

func (f *fakeAccounts) UserRoles(_ context.Context, id string) ([]string, error) {
	return f.roles[id], nil
}

type recordingAuditor struct {
	records []audit.Record
	err     error
}

func (a *recordingAuditor) Record(_ context.Context, rec audit.Record) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.records = append(a.records, rec)
	return "audit-id", nil
}

func newTestService(t *testing.T) (*Service, *fakeAccounts, *recordingAuditor) {
	t.Helper()
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	accounts := &fakeAccounts{
		accounts: map[string]Account{"u1": {ID: "u1", Email: "ana@uni.br", Name: "Ana", PasswordHash: hash}},
		roles:    map[string][]string{"u1": {RoleStudent}},
	}
	issuer, err := NewTokenIssuer(testSecret, "extensao", time.Hour)
	require.NoError(t, err)
	auditor := &recordingAuditor{}
	return NewService(accounts, issuer, auditor), accounts, auditor
}

func TestLoginSuccess(t *testing.T) {
	svc, _, auditor := newTestService(t)
	sess, err := svc.Login(context.Background(), " ANA@uni.br ", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "u1", sess.Principal.UserID)
	assert.Equal(t, []string{RoleStudent}, sess.Principal.Roles)

	require.Len(t, auditor.records, 1)
	assert.Equal(t, "auth.login_success", auditor.records[0].Action)
	assert.Equal(t, "u1", auditor.records[0].ActorID)

	p, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestLoginUnknownEmailAuditsWithoutActor(t *testing.T) {
	svc, _, auditor := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody@uni.br", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	require.Len(t, auditor.records, 1)
	rec := auditor.records[0]
	assert.Equal(t, "auth.login_failed", rec.Action)
	assert.Empty(t, rec.ActorID)
	assert.Equal(t, audit.EntityAuth, rec.Entity)
}

func TestLoginWrongPasswordAuditsUser(t *testing.T) {
	svc, _, auditor := newTestService(t)
	_, err := svc.Login(context.Background(), "ana@uni.br", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.Len(t, auditor.records, 1)
	assert.Equal(t, "u1", auditor.records[0].ActorID)
	assert.Equal(t, "user", auditor.records[0].Entity)
}

func TestLoginValidation(t *testing.T) {
	svc, _, auditor := newTestService(t)
	_, err := svc.Login(context.Background(), "", "x")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, auditor.records)
}

func TestLoginAuditFailureSurfaces(t *testing.T) {
	svc, _, auditor := newTestService(t)
	auditor.err = apperr.ErrAuditFailed
	_, err := svc.Login(context.Background(), "ana@uni.br", "s3cret-pass")
	assert.ErrorIs(t, err, apperr.ErrAuditFailed)
}

func TestLoginStoreFailureIsInternal(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	accounts.err = errors.New("db down")
	_, err := svc.Login(context.Background(), "ana@uni.br", "s3cret-pass")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestAuthenticateReloadsRoles(t *testing.T) {
	svc, accounts, _ := newTestService(t)
	sess, err := svc.Login(context.Background(), "ana@uni.br", "s3cret-pass")
	require.NoError(t, err)

	accounts.roles["u1"] = []string{RoleProfessor}
	p, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleProfessor}, p.Roles)

	delete(accounts.accounts, "u1")
	_, err = svc.Authenticate(context.Background(), sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Authenticate(context.Background(), strings.Repeat("x", 20))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestLogout(t *testing.T) {
	svc, _, auditor := newTestService(t)
	require.NoError(t, svc.Logout(context.Background(), NewPrincipal("u1", "", "", []string{RoleStudent})))
	require.Len(t, auditor.records, 1)
	assert.Equal(t, "auth.logout", auditor.records[0].Action)
	assert.ErrorIs(t, svc.Logout(context.Background(), nil), apperr.ErrUnauthenticated)
}
