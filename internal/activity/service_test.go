package activity

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
	store *memory.Store
	svc   *Service
	prof  *auth.Principal
	other *auth.Principal
	admin *auth.Principal
	cm    *auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	catalog := auth.NewCatalog(store)
	require.NoError(t, catalog.Refresh(ctx))
	for _, id := range []string{"prof", "other", "admin", "cm", "stu"} {
		require.NoError(t, store.Users().Create(ctx, domain.User{ID: id, Email: id + "@uni.br"}))
	}
	require.NoError(t, store.Profiles().CreateStudent(ctx, domain.Student{UserID: "stu", Program: "CS", Semester: 1}))
	return &fixture{
		store: store,
		svc:   NewService(store, auth.NewResolver(catalog), audit.NewRecorder(store)),
		prof:  auth.NewPrincipal("prof", "", "", []string{auth.RoleProfessor}),
		other: auth.NewPrincipal("other", "", "", []string{auth.RoleProfessor}),
		admin: auth.NewPrincipal("admin", "", "", []string{auth.RoleAdmin}),
		cm:    auth.NewPrincipal("cm", "", "", []string{auth.RoleCommitteeMember}),
	}
}

func (f *fixture) create(t *testing.T) domain.Activity {
	t.Helper()
	a, err := f.svc.Create(context.Background(), f.prof, CreateInput{Title: "Horta", Term: "2024.1", HourBudget: 40})
	require.NoError(t, err)
	return a
}

func TestCreateDefaultsResponsibleToCaller(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	assert.Equal(t, []string{"prof"}, a.Responsibles)
	assert.Equal(t, domain.ActivityPlanned, a.Status)
	assert.Equal(t, 1, f.store.AuditCount())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for name, in := range map[string]CreateInput{
		"title":  {Term: "t", HourBudget: 1},
		"term":   {Title: "x", HourBudget: 1},
		"budget": {Title: "x", Term: "t"},
		"status": {Title: "x", Term: "t", HourBudget: 1, Status: "em_andamento"},
	} {
		_, err := f.svc.Create(ctx, f.prof, in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), name)
	}

	_, err := f.svc.Create(ctx, f.prof, CreateInput{Title: "x", Term: "t", HourBudget: 1, CategoryID: "nope"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateOwnRequiresCallerAmongResponsibles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.prof, CreateInput{Title: "x", Term: "t", HourBudget: 1, Responsibles: []string{"other"}})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	a, err := f.svc.Create(ctx, f.admin, CreateInput{Title: "x", Term: "t", HourBudget: 1, Responsibles: []string{"other"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, a.Responsibles)

	_, err = f.svc.Create(ctx, f.cm, CreateInput{Title: "x", Term: "t", HourBudget: 1})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

// A professor who is not responsible for an activity cannot delete it, and nothing is audited.
func TestDeleteByNonResponsibleProfessor(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	before := f.store.AuditCount()

	err := f.svc.Delete(context.Background(), f.other, a.ID)
	var denied *auth.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	assert.Equal(t, before, f.store.AuditCount())

	deletes, err := f.store.ListAudit(context.Background(), audit.Filter{Action: "activity.delete"})
	require.NoError(t, err)
	assert.Empty(t, deletes)

	_, err = f.store.Activities().Get(context.Background(), a.ID)
	assert.NoError(t, err)
}

func TestDeleteByResponsibleAndAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)
	require.NoError(t, f.svc.Delete(ctx, f.prof, a.ID))

	b := f.create(t)
	require.NoError(t, f.svc.Delete(ctx, f.admin, b.ID))

	entries, err := f.store.ListAudit(ctx, audit.Filter{Action: "activity.delete"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDeleteWithEnrollmentsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)
	require.NoError(t, f.store.Enrollments().Create(ctx, domain.Enrollment{ID: "e1", StudentID: "stu", ActivityID: a.ID}))

	err := f.svc.Delete(ctx, f.prof, a.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)

	title := "Horta comunitária"
	status := domain.ActivityInProgress
	got, err := f.svc.Update(ctx, f.prof, a.ID, UpdateInput{Title: &title, Status: &status, Responsibles: []string{"prof", "other"}})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, []string{"prof", "other"}, got.Responsibles)

	// "other" is now responsible and may update.
	budget := 80
	_, err = f.svc.Update(ctx, f.other, a.ID, UpdateInput{HourBudget: &budget})
	require.NoError(t, err)

	zero := 0
	_, err = f.svc.Update(ctx, f.prof, a.ID, UpdateInput{HourBudget: &zero})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	stranger := auth.NewPrincipal("stranger", "", "", []string{auth.RoleProfessor})
	_, err = f.svc.Update(ctx, stranger, a.ID, UpdateInput{Title: &title})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

func TestUpdateBudgetBelowValidatedHoursConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)
	require.NoError(t, f.store.Enrollments().Create(ctx, domain.Enrollment{
		ID: "e1", StudentID: "stu", ActivityID: a.ID, ValidatedHours: 30, Status: domain.EnrollmentApproved,
	}))
	audits := f.store.AuditCount()

	budget := 10
	_, err := f.svc.Update(ctx, f.prof, a.ID, UpdateInput{HourBudget: &budget})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	got, err := f.store.Activities().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.HourBudget)
	assert.Equal(t, audits, f.store.AuditCount())

	budget = 30
	got, err = f.svc.Update(ctx, f.prof, a.ID, UpdateInput{HourBudget: &budget})
	require.NoError(t, err)
	assert.Equal(t, 30, got.HourBudget)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)
	student := auth.NewPrincipal("stu", "", "", []string{auth.RoleStudent})

	got, err := f.svc.Get(ctx, student, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	list, err := f.svc.List(ctx, student, domain.ActivityFilter{Status: domain.ActivityPlanned})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Get(ctx, nil, a.ID)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateCategory(ctx, f.cm, "Cultura", "")
	require.NoError(t, err)
	_, err = f.svc.CreateCategory(ctx, f.cm, "cultura", "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = f.svc.CreateCategory(ctx, f.prof, "Esporte", "")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	list, err := f.svc.ListCategories(ctx, f.prof)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Create(ctx, f.prof, CreateInput{Title: "x", Term: "t", HourBudget: 1, CategoryID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(f.svc.DeleteCategory(ctx, f.cm, c.ID)))

	empty, err := f.svc.CreateCategory(ctx, f.cm, "Esporte", "")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteCategory(ctx, f.cm, empty.ID))
}
