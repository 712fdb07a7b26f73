package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/domain"
)

func seedStudent(t *testing.T, s *Store, id, email string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Users().Create(ctx, domain.User{ID: id, Email: email, Name: id, CreatedAt: time.Now()}))
	require.NoError(t, s.Users().AssignRoles(ctx, id, []string{"student"}))
	require.NoError(t, s.Profiles().CreateStudent(ctx, domain.Student{UserID: id, Program: "CS", Semester: 1, RemainingHours: 350}))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedStudent(t, s, "s1", "s1@uni.br")

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx domain.Repository) error {
		st, err := tx.Profiles().LockStudent(ctx, "s1")
		require.NoError(t, err)
		st.AccumulatedHours = 100
		require.NoError(t, tx.Profiles().UpdateStudentHours(ctx, st))
		require.NoError(t, tx.Users().Create(ctx, domain.User{ID: "u2", Email: "u2@uni.br"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	st, err := s.Profiles().GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, st.AccumulatedHours)
	_, err = s.Users().Get(ctx, "u2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()
	assert.Panics(t, func() {
		_ = s.RunInTx(ctx, func(tx domain.Repository) error {
			_ = tx.Users().Create(ctx, domain.User{ID: "u1", Email: "u1@uni.br"})
			panic("half way")
		})
	})
	_, err := s.Users().Get(ctx, "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// The lock was released.
	require.NoError(t, s.Users().Create(ctx, domain.User{ID: "u1", Email: "u1@uni.br"}))
}

func TestRunInTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RunInTx(ctx, func(tx domain.Repository) error {
		return tx.Users().Create(ctx, domain.User{ID: "u1", Email: "U1@Uni.br"})
	}))
	u, err := s.Users().GetByEmail(ctx, "u1@uni.br")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().Create(ctx, domain.User{ID: "u1", Email: "a@uni.br", RegistrationNumber: "2020"}))
	assert.ErrorIs(t, s.Users().Create(ctx, domain.User{ID: "u2", Email: "A@uni.br"}), apperr.ErrConflict)
	assert.ErrorIs(t, s.Users().Create(ctx, domain.User{ID: "u3", Email: "c@uni.br", RegistrationNumber: "2020"}), apperr.ErrConflict)

	require.NoError(t, s.Activities().CreateCategory(ctx, domain.Category{ID: "c1", Name: "Cultura"}))
	assert.ErrorIs(t, s.Activities().CreateCategory(ctx, domain.Category{ID: "c2", Name: "cultura"}), apperr.ErrConflict)
}

func TestEnrollmentAndProofConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedStudent(t, s, "s1", "s1@uni.br")
	require.NoError(t, s.Activities().Create(ctx, domain.Activity{ID: "a1", Title: "T", HourBudget: 10}))

	require.NoError(t, s.Enrollments().Create(ctx, domain.Enrollment{ID: "e1", StudentID: "s1", ActivityID: "a1"}))
	assert.ErrorIs(t, s.Enrollments().Create(ctx, domain.Enrollment{ID: "e2", StudentID: "s1", ActivityID: "a1"}), apperr.ErrConflict)
	assert.ErrorIs(t, s.Enrollments().Create(ctx, domain.Enrollment{ID: "e3", StudentID: "ghost", ActivityID: "a1"}), apperr.ErrNotFound)

	require.NoError(t, s.Proofs().Create(ctx, domain.Proof{ID: "p1", EnrollmentID: "e1"}))
	assert.ErrorIs(t, s.Proofs().Create(ctx, domain.Proof{ID: "p2", EnrollmentID: "e1"}), apperr.ErrConflict)

	p, err := s.Proofs().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", p.StudentID)

	assert.ErrorIs(t, s.Enrollments().Delete(ctx, "e1"), apperr.ErrConflict)
	assert.ErrorIs(t, s.Activities().Delete(ctx, "a1"), apperr.ErrConflict)
	assert.ErrorIs(t, s.Users().Delete(ctx, "s1"), apperr.ErrConflict)
}

func TestDeleteUserCascadesProfilesAndResponsibles(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Users().Create(ctx, domain.User{ID: "p1", Email: "p1@uni.br"}))
	require.NoError(t, s.Profiles().CreateProfessor(ctx, domain.Professor{UserID: "p1", Area: "CS", Department: "DCC"}))
	require.NoError(t, s.Activities().Create(ctx, domain.Activity{ID: "a1", Title: "T", HourBudget: 10, Responsibles: []string{"p1"}}))

	require.NoError(t, s.Users().Delete(ctx, "p1"))
	_, err := s.Profiles().GetProfessor(ctx, "p1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	a, err := s.Activities().Get(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, a.Responsibles)
}

func TestAuditListNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, action := range []string{"user.register", "proof.create", "proof.update_status"} {
		require.NoError(t, s.AppendAudit(ctx, audit.Entry{ID: action, Entity: "x", Action: action}))
	}
	all, err := s.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "proof.update_status", all[0].Action)

	one, err := s.ListAudit(ctx, audit.Filter{Action: "proof.create", Limit: 5})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, 3, s.AuditCount())
}

func TestAccountStore(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedStudent(t, s, "s1", "s1@uni.br")
	acct, err := s.FindAccountByEmail(ctx, "S1@uni.br")
	require.NoError(t, err)
	assert.Equal(t, "s1", acct.ID)
	roles, err := s.UserRoles(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"student"}, roles)
	_, err = s.FindAccount(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
