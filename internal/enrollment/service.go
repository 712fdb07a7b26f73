// Package enrollment registers students in activities and lets reviewers manage the
// resulting enrollments.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
	"extensao.org/internal/ids"
)

type Authorizer interface {
	Authorize(ctx context.Context, p *auth.Principal, res auth.Resource, required ...string) error
}

type Auditor interface {
	Record(ctx context.Context, rec audit.Record) (string, error)
}

// Service manages enrollments.
type Service struct {
	store domain.Store
	authz Authorizer
	audit Auditor
	now   func() time.Time
}

// NewService constructs Service.
func NewService(store domain.Store, authz Authorizer, auditor Auditor) *Service {
	return &Service{store: store, authz: authz, audit: auditor, now: time.Now}
}

// Enroll registers the calling student in an activity.
func (s *Service) Enroll(ctx context.Context, p *auth.Principal, activityID string) (domain.Enrollment, error) {
	if p == nil || p.UserID == "" {
		return domain.Enrollment{}, apperr.ErrUnauthenticated
	}
	activityID = strings.TrimSpace(activityID)
	if activityID == "" {
		return domain.Enrollment{}, apperr.Invalid("activity_id is required")
	}
	if err := s.authz.Authorize(ctx, p, auth.StudentResource{StudentID: p.UserID}, auth.PermEnrollmentCreate); err != nil {
		return domain.Enrollment{}, err
	}
	if _, err := s.store.Profiles().GetStudent(ctx, p.UserID); err != nil {
		return domain.Enrollment{}, apperr.Internal("get student", err)
	}
	if _, err := s.store.Activities().Get(ctx, activityID); err != nil {
		return domain.Enrollment{}, apperr.Internal("get activity", err)
	}

	now := s.now().UTC()
	enr := domain.Enrollment{
		ID:         ids.New(),
		StudentID:  p.UserID,
		ActivityID: activityID,
		Status:     domain.EnrollmentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		_, err := tx.Enrollments().Find(ctx, p.UserID, activityID)
		switch {
		case err == nil:
			return apperr.Conflict("student already enrolled in activity")
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		return tx.Enrollments().Create(ctx, enr)
	})
	if err != nil {
		return domain.Enrollment{}, apperr.Internal("create enrollment", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "enrollment",
		EntityID:    enr.ID,
		Action:      "enrollment.create",
		After:       enr,
		Description: fmt.Sprintf("student %s enrolled in activity %s", p.UserID, activityID),
	}); err != nil {
		return domain.Enrollment{}, err
	}
	return enr, nil
}

// Get returns an enrollment visible to the caller.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (domain.Enrollment, error) {
	if p == nil || p.UserID == "" {
		return domain.Enrollment{}, apperr.ErrUnauthenticated
	}
	enr, err := s.store.Enrollments().Get(ctx, id)
	if err != nil {
		return domain.Enrollment{}, apperr.Internal("get enrollment", err)
	}
	if err := s.authz.Authorize(ctx, p, enr.Resource(), auth.PermEnrollmentRead, auth.PermEnrollmentManage); err != nil {
		return domain.Enrollment{}, err
	}
	return enr, nil
}

// List returns enrollments newest first. Callers without enrollment.manage only see
// their own.
func (s *Service) List(ctx context.Context, p *auth.Principal, f domain.EnrollmentFilter) ([]domain.Enrollment, error) {
	if p == nil || p.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown enrollment status %q", f.Status)
	}
	if err := s.authz.Authorize(ctx, p, nil, auth.PermEnrollmentManage); err != nil {
		if !errors.Is(err, apperr.ErrForbidden) {
			return nil, err
		}
		if err := s.authz.Authorize(ctx, p, auth.StudentResource{StudentID: p.UserID}, auth.PermEnrollmentRead); err != nil {
			return nil, err
		}
		f.StudentID = p.UserID
	}
	out, err := s.store.Enrollments().List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list enrollments", err)
	}
	return out, nil
}

// UpdateInput changes an enrollment. Nil fields are kept.
type UpdateInput struct {
	Status         *domain.EnrollmentStatus
	ValidatedHours *int
}

// Update lets a manager set the status or the validated hours directly.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id string, in UpdateInput) (domain.Enrollment, error) {
	if p == nil || p.UserID == "" {
		return domain.Enrollment{}, apperr.ErrUnauthenticated
	}
	if in.Status == nil && in.ValidatedHours == nil {
		return domain.Enrollment{}, apperr.Invalid("nothing to update")
	}
	if in.Status != nil && !in.Status.Valid() {
		return domain.Enrollment{}, apperr.Invalid("status must be pending, approved or rejected")
	}
	current, err := s.store.Enrollments().Get(ctx, id)
	if err != nil {
		return domain.Enrollment{}, apperr.Internal("get enrollment", err)
	}
	if err := s.authz.Authorize(ctx, p, current.Resource(), auth.PermEnrollmentManage); err != nil {
		return domain.Enrollment{}, err
	}

	var before, after domain.Enrollment
	err = s.store.RunInTx(ctx, func(tx domain.Repository) error {
		enr, err := tx.Enrollments().Lock(ctx, id)
		if err != nil {
			return err
		}
		before = enr
		if in.ValidatedHours != nil {
			activity, err := tx.Activities().Get(ctx, enr.ActivityID)
			if err != nil {
				return err
			}
			if *in.ValidatedHours < 0 || *in.ValidatedHours > activity.HourBudget {
				return apperr.Invalid("validated_hours must be between 0 and %d", activity.HourBudget)
			}
			enr.ValidatedHours = *in.ValidatedHours
		}
		if in.Status != nil {
			enr.Status = *in.Status
		}
		enr.UpdatedAt = s.now().UTC()
		after = enr
		return tx.Enrollments().Update(ctx, enr)
	})
	if err != nil {
		return domain.Enrollment{}, apperr.Internal("update enrollment", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "enrollment",
		EntityID:    id,
		Action:      "enrollment.update",
		Before:      before,
		After:       after,
		Description: fmt.Sprintf("enrollment %s updated", id),
	}); err != nil {
		return domain.Enrollment{}, err
	}
	return after, nil
}

// Delete removes an enrollment without a proof of completion.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if p == nil || p.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	current, err := s.store.Enrollments().Get(ctx, id)
	if err != nil {
		return apperr.Internal("get enrollment", err)
	}
	if err := s.authz.Authorize(ctx, p, current.Resource(), auth.PermEnrollmentManage); err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(tx domain.Repository) error {
		_, err := tx.Proofs().GetByEnrollment(ctx, id)
		switch {
		case err == nil:
			return apperr.Conflict("enrollment has a proof of completion")
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		return tx.Enrollments().Delete(ctx, id)
	})
	if err != nil {
		return apperr.Internal("delete enrollment", err)
	}
	_, err = s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "enrollment",
		EntityID:    id,
		Action:      "enrollment.delete",
		Before:      current,
		Description: fmt.Sprintf("enrollment %s deleted", id),
	})
	return err
}
