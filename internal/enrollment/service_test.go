package enrollment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
	"extensao.org/internal/store/memory"
)

type fixture struct {
	store   *memory.Store
	svc     *Service
	student *auth.Principal
	manager *auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	catalog := auth.NewCatalog(store)
	require.NoError(t, catalog.Refresh(ctx))

	require.NoError(t, store.Users().Create(ctx, domain.User{ID: "stu", Email: "stu@uni.br"}))
	require.NoError(t, store.Profiles().CreateStudent(ctx, domain.Student{UserID: "stu", Program: "CS", Semester: 2, RemainingHours: 350}))
	require.NoError(t, store.Users().Create(ctx, domain.User{ID: "prof", Email: "prof@uni.br"}))
	require.NoError(t, store.Activities().Create(ctx, domain.Activity{ID: "act", Title: "Horta", Term: "2024.2", HourBudget: 60}))

	return &fixture{
		store:   store,
		svc:     NewService(store, auth.NewResolver(catalog), audit.NewRecorder(store)),
		student: auth.NewPrincipal("stu", "stu@uni.br", "", []string{auth.RoleStudent}),
		manager: auth.NewPrincipal("cm", "cm@uni.br", "", []string{auth.RoleCommitteeMember}),
	}
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enr, err := f.svc.Enroll(ctx, f.student, "act")
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentPending, enr.Status)
	assert.Zero(t, enr.ValidatedHours)
	assert.Equal(t, 1, f.store.AuditCount())

	_, err = f.svc.Enroll(ctx, f.student, "act")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "duplicate enrollment is a conflict, not a no-op")
	assert.Equal(t, 1, f.store.AuditCount())
}

func TestEnrollPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, nil, "act")
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	_, err = f.svc.Enroll(ctx, f.student, " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Enroll(ctx, f.student, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	noProfile := auth.NewPrincipal("ghost", "", "", []string{auth.RoleStudent})
	_, err = f.svc.Enroll(ctx, noProfile, "act")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	prof := auth.NewPrincipal("prof", "", "", []string{auth.RoleProfessor})
	_, err = f.svc.Enroll(ctx, prof, "act")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestUpdateValidatesHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr, err := f.svc.Enroll(ctx, f.student, "act")
	require.NoError(t, err)

	tooMany := 61
	_, err = f.svc.Update(ctx, f.manager, enr.ID, UpdateInput{ValidatedHours: &tooMany})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	bad := domain.EnrollmentStatus("reprovada")
	_, err = f.svc.Update(ctx, f.manager, enr.ID, UpdateInput{Status: &bad})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	hours, status := 60, domain.EnrollmentApproved
	got, err := f.svc.Update(ctx, f.manager, enr.ID, UpdateInput{ValidatedHours: &hours, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 60, got.ValidatedHours)
	assert.Equal(t, domain.EnrollmentApproved, got.Status)

	_, err = f.svc.Update(ctx, f.student, enr.ID, UpdateInput{Status: &status})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestDeleteBlockedByProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr, err := f.svc.Enroll(ctx, f.student, "act")
	require.NoError(t, err)
	require.NoError(t, f.store.Proofs().Create(ctx, domain.Proof{ID: "p1", EnrollmentID: enr.ID, Status: domain.ProofPending}))

	err = f.svc.Delete(ctx, f.manager, enr.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, f.store.Proofs().Delete(ctx, "p1"))
	require.NoError(t, f.svc.Delete(ctx, f.manager, enr.ID))
	_, err = f.svc.Get(ctx, f.manager, enr.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetAndListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enr, err := f.svc.Enroll(ctx, f.student, "act")
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.student, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enr.ID, got.ID)

	other := auth.NewPrincipal("stu2", "", "", []string{auth.RoleStudent})
	_, err = f.svc.Get(ctx, other, enr.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	mine, err := f.svc.List(ctx, other, domain.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, mine)

	all, err := f.svc.List(ctx, f.manager, domain.EnrollmentFilter{ActivityID: "act"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
