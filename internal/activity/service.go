// Package activity manages extension activities, their responsible users and categories.
package activity

import (
	"context"
	"fmt"
	"slices"
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

// Service manages activities and categories.
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

// CreateInput describes a new activity. Responsibles default to the caller.
type CreateInput struct {
	Title        string
	Description  string
	Term         string
	HourBudget   int
	CategoryID   string
	Status       domain.ActivityStatus
	Responsibles []string
}

// Create adds an activity. Callers holding only activity.create:own must be responsible.
func (s *Service) Create(ctx context.Context, p *auth.Principal, in CreateInput) (domain.Activity, error) {
	if p == nil || p.UserID == "" {
		return domain.Activity{}, apperr.ErrUnauthenticated
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Term = strings.TrimSpace(in.Term)
	switch {
	case in.Title == "":
		return domain.Activity{}, apperr.Invalid("title is required")
	case in.Term == "":
		return domain.Activity{}, apperr.Invalid("term is required")
	case in.HourBudget <= 0:
		return domain.Activity{}, apperr.Invalid("hour_budget must be positive")
	}
	if in.Status == "" {
		in.Status = domain.ActivityPlanned
	}
	if !in.Status.Valid() {
		return domain.Activity{}, apperr.Invalid("unknown activity status %q", in.Status)
	}
	responsibles := uniqueIDs(in.Responsibles)
	if len(responsibles) == 0 {
		responsibles = []string{p.UserID}
	}

	now := s.now().UTC()
	a := domain.Activity{
		ID:           ids.New(),
		Title:        in.Title,
		Description:  strings.TrimSpace(in.Description),
		Term:         in.Term,
		HourBudget:   in.HourBudget,
		CategoryID:   strings.TrimSpace(in.CategoryID),
		Status:       in.Status,
		Responsibles: responsibles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.authz.Authorize(ctx, p, a.Resource(), auth.PermActivityCreate); err != nil {
		return domain.Activity{}, err
	}
	if err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		if err := checkRefs(ctx, tx, a); err != nil {
			return err
		}
		return tx.Activities().Create(ctx, a)
	}); err != nil {
		return domain.Activity{}, apperr.Internal("create activity", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "activity",
		EntityID:    a.ID,
		Action:      "activity.create",
		After:       a,
		Description: fmt.Sprintf("activity %q created", a.Title),
	}); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

func checkRefs(ctx context.Context, tx domain.Repository, a domain.Activity) error {
	if a.CategoryID != "" {
		if _, err := tx.Activities().GetCategory(ctx, a.CategoryID); err != nil {
			return err
		}
	}
	for _, uid := range a.Responsibles {
		if _, err := tx.Users().Get(ctx, uid); err != nil {
			return fmt.Errorf("responsible %s: %w", uid, err)
		}
	}
	return nil
}

// Get returns one activity.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (domain.Activity, error) {
	if err := s.authz.Authorize(ctx, p, nil, auth.PermActivityRead); err != nil {
		return domain.Activity{}, err
	}
	a, err := s.store.Activities().Get(ctx, id)
	if err != nil {
		return domain.Activity{}, apperr.Internal("get activity", err)
	}
	return a, nil
}

// List returns activities newest first.
func (s *Service) List(ctx context.Context, p *auth.Principal, f domain.ActivityFilter) ([]domain.Activity, error) {
	if err := s.authz.Authorize(ctx, p, nil, auth.PermActivityRead); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Invalid("unknown activity status %q", f.Status)
	}
	out, err := s.store.Activities().List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list activities", err)
	}
	return out, nil
}

// UpdateInput changes an activity. Nil fields are kept; a non-nil Responsibles replaces
// the whole set.
type UpdateInput struct {
	Title        *string
	Description  *string
	Term         *string
	HourBudget   *int
	CategoryID   *string
	Status       *domain.ActivityStatus
	Responsibles []string
}

// Update changes an activity the caller is responsible for, or any with activity.update:any.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id string, in UpdateInput) (domain.Activity, error) {
	if p == nil || p.UserID == "" {
		return domain.Activity{}, apperr.ErrUnauthenticated
	}
	current, err := s.store.Activities().Get(ctx, id)
	if err != nil {
		return domain.Activity{}, apperr.Internal("get activity", err)
	}
	if err := s.authz.Authorize(ctx, p, current.Resource(), auth.PermActivityUpdate); err != nil {
		return domain.Activity{}, err
	}

	next := current
	next.Responsibles = slices.Clone(current.Responsibles)
	if in.Title != nil {
		if next.Title = strings.TrimSpace(*in.Title); next.Title == "" {
			return domain.Activity{}, apperr.Invalid("title must not be empty")
		}
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Term != nil {
		if next.Term = strings.TrimSpace(*in.Term); next.Term == "" {
			return domain.Activity{}, apperr.Invalid("term must not be empty")
		}
	}
	if in.HourBudget != nil {
		if *in.HourBudget <= 0 {
			return domain.Activity{}, apperr.Invalid("hour_budget must be positive")
		}
		next.HourBudget = *in.HourBudget
	}
	if in.CategoryID != nil {
		next.CategoryID = strings.TrimSpace(*in.CategoryID)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return domain.Activity{}, apperr.Invalid("unknown activity status %q", *in.Status)
		}
		next.Status = *in.Status
	}
	if in.Responsibles != nil {
		next.Responsibles = uniqueIDs(in.Responsibles)
		if len(next.Responsibles) == 0 {
			return domain.Activity{}, apperr.Invalid("an activity needs at least one responsible")
		}
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		if err := checkRefs(ctx, tx, next); err != nil {
			return err
		}
		if next.HourBudget < current.HourBudget {
			validated, err := tx.Enrollments().MaxValidatedHours(ctx, id)
			if err != nil {
				return err
			}
			if validated > next.HourBudget {
				return apperr.Conflict("hour_budget %d is below the %d hours already validated on an enrollment", next.HourBudget, validated)
			}
		}
		return tx.Activities().Update(ctx, next)
	}); err != nil {
		return domain.Activity{}, apperr.Internal("update activity", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "activity",
		EntityID:    id,
		Action:      "activity.update",
		Before:      current,
		After:       next,
		Description: fmt.Sprintf("activity %s updated", id),
	}); err != nil {
		return domain.Activity{}, err
	}
	return next, nil
}

// Delete removes an activity without enrollments. Responsible users are detached in the
// same transaction.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if p == nil || p.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	current, err := s.store.Activities().Get(ctx, id)
	if err != nil {
		return apperr.Internal("get activity", err)
	}
	if err := s.authz.Authorize(ctx, p, current.Resource(), auth.PermActivityDelete); err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(tx domain.Repository) error {
		n, err := tx.Enrollments().CountByActivity(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("activity has %d enrollments", n)
		}
		return tx.Activities().Delete(ctx, id)
	})
	if err != nil {
		return apperr.Internal("delete activity", err)
	}
	_, err = s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "activity",
		EntityID:    id,
		Action:      "activity.delete",
		Before:      current,
		Description: fmt.Sprintf("activity %q deleted", current.Title),
	})
	return err
}

func uniqueIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
