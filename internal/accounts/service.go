// Package accounts registers users with their role specializations and manages them.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
	"extensao.org/internal/ids"
	"extensao.org/internal/validate"
)

const (
	defaultProgramQuota      = 350
	defaultCommitteeFunction = "member"
)

type Authorizer interface {
	Authorize(ctx context.Context, p *auth.Principal, res auth.Resource, required ...string) error
}

type Auditor interface {
	Record(ctx context.Context, rec audit.Record) (string, error)
}

// RoleSet reports whether a role exists.
type RoleSet interface {
	KnownRole(role string) bool
}

type builtinRoles struct{}

func (builtinRoles) KnownRole(role string) bool {
	switch role {
	case auth.RoleStudent, auth.RoleProfessor, auth.RoleCommitteeMember, auth.RoleAdmin:
		return true
	}
	return false
}

// Service manages user accounts.
type Service struct {
	store        domain.Store
	authz        Authorizer
	audit        Auditor
	roles        RoleSet
	programQuota int
	now          func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithProgramQuota sets the hours a new student starts with as remaining.
func WithProgramQuota(hours int) Option {
	return func(s *Service) {
		if hours > 0 {
			s.programQuota = hours
		}
	}
}

// WithRoles replaces the built-in role set, usually with the permission catalog.
func WithRoles(r RoleSet) Option {
	return func(s *Service) {
		if r != nil {
			s.roles = r
		}
	}
}

// NewService constructs Service.
func NewService(store domain.Store, authz Authorizer, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		store:        store,
		authz:        authz,
		audit:        auditor,
		roles:        builtinRoles{},
		programQuota: defaultProgramQuota,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StudentInput is required with the student role.
type StudentInput struct {
	Program  string `json:"program" validate:"notblank"`
	Semester int    `json:"semester" validate:"gte=0"`
}

// ProfessorInput is required with the professor role.
type ProfessorInput struct {
	Area       string `json:"area" validate:"notblank"`
	Department string `json:"department" validate:"notblank"`
}

// CommitteeInput is required with the committee_member role.
type CommitteeInput struct {
	Designation string `json:"designation" validate:"notblank"`
	Function    string `json:"function"`
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Email              string          `json:"email" validate:"required,email"`
	Password           string          `json:"password" validate:"required,min=8,max=72"`
	Name               string          `json:"name" validate:"notblank"`
	RegistrationNumber string          `json:"registration_number"`
	Roles              []string        `json:"roles" validate:"required,min=1"`
	Student            *StudentInput   `json:"student,omitempty"`
	Professor          *ProfessorInput `json:"professor,omitempty"`
	Committee          *CommitteeInput `json:"committee_member,omitempty"`
}

// Register creates the account, its roles and one specialization record per role that
// needs one. caller may be nil for self-registration; granting admin requires
// admin.manage_roles.
func (s *Service) Register(ctx context.Context, caller *auth.Principal, in RegisterInput) (domain.UserProfile, error) {
	if err := validate.Struct(in); err != nil {
		return domain.UserProfile{}, err
	}
	roles, err := s.checkRoles(in.Roles)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if err := requireSpecializations(roles, &in); err != nil {
		return domain.UserProfile{}, err
	}
	if slices.Contains(roles, auth.RoleAdmin) {
		if err := s.authz.Authorize(ctx, caller, nil, auth.PermAdminManageRoles); err != nil {
			return domain.UserProfile{}, err
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.UserProfile{}, err
	}
	now := s.now().UTC()
	profile := domain.UserProfile{
		User: domain.User{
			ID:                 ids.New(),
			Email:              strings.TrimSpace(strings.ToLower(in.Email)),
			Name:               strings.TrimSpace(in.Name),
			RegistrationNumber: strings.TrimSpace(in.RegistrationNumber),
			PasswordHash:       hash,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		Roles: roles,
	}

	err = s.store.RunInTx(ctx, func(tx domain.Repository) error {
		if err := checkUnique(ctx, tx, profile.User); err != nil {
			return err
		}
		if err := tx.Users().Create(ctx, profile.User); err != nil {
			return err
		}
		if err := tx.Users().AssignRoles(ctx, profile.ID, roles); err != nil {
			return err
		}
		if in.Student != nil && slices.Contains(roles, auth.RoleStudent) {
			semester := in.Student.Semester
			if semester == 0 {
				semester = 1
			}
			st := domain.Student{
				UserID:         profile.ID,
				Program:        strings.TrimSpace(in.Student.Program),
				Semester:       semester,
				Status:         domain.StudentActive,
				RemainingHours: s.programQuota,
			}
			if err := tx.Profiles().CreateStudent(ctx, st); err != nil {
				return err
			}
			profile.Student = &st
		}
		if in.Professor != nil && slices.Contains(roles, auth.RoleProfessor) {
			pr := domain.Professor{
				UserID:     profile.ID,
				Area:       strings.TrimSpace(in.Professor.Area),
				Department: strings.TrimSpace(in.Professor.Department),
			}
			if err := tx.Profiles().CreateProfessor(ctx, pr); err != nil {
				return err
			}
			profile.Professor = &pr
		}
		if in.Committee != nil && slices.Contains(roles, auth.RoleCommitteeMember) {
			fn := strings.TrimSpace(in.Committee.Function)
			if fn == "" {
				fn = defaultCommitteeFunction
			}
			cm := domain.CommitteeMember{
				UserID:      profile.ID,
				Designation: strings.TrimSpace(in.Committee.Designation),
				Function:    fn,
			}
			if err := tx.Profiles().CreateCommitteeMember(ctx, cm); err != nil {
				return err
			}
			profile.Committee = &cm
		}
		return nil
	})
	if err != nil {
		return domain.UserProfile{}, apperr.Internal("register user", err)
	}

	actor := profile.ID
	if caller != nil && caller.UserID != "" {
		actor = caller.UserID
	}
	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     actor,
		Entity:      "user",
		EntityID:    profile.ID,
		Action:      "user.register",
		After:       profile,
		Description: fmt.Sprintf("user %s registered with roles %s", profile.Email, strings.Join(roles, ", ")),
	}); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// checkRoles normalizes the requested roles and enforces the combination rules: student
// stands alone and committee_member only pairs with professor.
func (s *Service) checkRoles(requested []string) ([]string, error) {
	var roles []string
	for _, r := range requested {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" || slices.Contains(roles, r) {
			continue
		}
		if !s.roles.KnownRole(r) {
			return nil, apperr.Invalid("unknown role %q", r)
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, apperr.Invalid("at least one role is required")
	}
	if slices.Contains(roles, auth.RoleStudent) && len(roles) > 1 {
		return nil, apperr.Invalid("the student role cannot be combined with other roles")
	}
	if slices.Contains(roles, auth.RoleCommitteeMember) {
		for _, r := range roles {
			if r != auth.RoleCommitteeMember && r != auth.RoleProfessor {
				return nil, apperr.Invalid("committee_member may only be combined with professor")
			}
		}
	}
	return roles, nil
}

func requireSpecializations(roles []string, in *RegisterInput) error {
	for _, r := range roles {
		var missing bool
		var spec any
		switch r {
		case auth.RoleStudent:
			missing, spec = in.Student == nil, in.Student
		case auth.RoleProfessor:
			missing, spec = in.Professor == nil, in.Professor
		case auth.RoleCommitteeMember:
			missing, spec = in.Committee == nil, in.Committee
		default:
			continue
		}
		if missing {
			return apperr.Invalid("role %s requires its profile data", r)
		}
		if err := validate.Struct(spec); err != nil {
			return err
		}
	}
	return nil
}

func checkUnique(ctx context.Context, repo domain.Repository, u domain.User) error {
	taken, err := repo.Users().EmailTaken(ctx, u.Email, u.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("email already registered")
	}
	if u.RegistrationNumber == "" {
		return nil
	}
	taken, err = repo.Users().RegistrationTaken(ctx, u.RegistrationNumber, u.ID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("registration number already registered")
	}
	return nil
}

// Get returns a user profile.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (domain.UserProfile, error) {
	if err := s.authz.Authorize(ctx, p, auth.UserResource{UserID: id}, auth.PermUserRead); err != nil {
		return domain.UserProfile{}, err
	}
	return s.profile(ctx, s.store, id)
}

func (s *Service) profile(ctx context.Context, repo domain.Repository, id string) (domain.UserProfile, error) {
	u, err := repo.Users().Get(ctx, id)
	if err != nil {
		return domain.UserProfile{}, apperr.Internal("get user", err)
	}
	roles, err := repo.Users().Roles(ctx, id)
	if err != nil {
		return domain.UserProfile{}, apperr.Internal("get roles", err)
	}
	out := domain.UserProfile{User: u, Roles: roles}
	for _, r := range roles {
		switch r {
		case auth.RoleStudent:
			if st, err := repo.Profiles().GetStudent(ctx, id); err == nil {
				out.Student = &st
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return domain.UserProfile{}, apperr.Internal("get student", err)
			}
		case auth.RoleProfessor:
			if pr, err := repo.Profiles().GetProfessor(ctx, id); err == nil {
				out.Professor = &pr
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return domain.UserProfile{}, apperr.Internal("get professor", err)
			}
		case auth.RoleCommitteeMember:
			if cm, err := repo.Profiles().GetCommitteeMember(ctx, id); err == nil {
				out.Committee = &cm
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return domain.UserProfile{}, apperr.Internal("get committee member", err)
			}
		}
	}
	return out, nil
}

// List returns users newest first.
func (s *Service) List(ctx context.Context, p *auth.Principal, f domain.UserFilter) ([]domain.UserProfile, error) {
	if err := s.authz.Authorize(ctx, p, nil, auth.PermUserRead); err != nil {
		return nil, err
	}
	users, err := s.store.Users().List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list users", err)
	}
	out := make([]domain.UserProfile, 0, len(users))
	for _, u := range users {
		prof, err := s.profile(ctx, s.store, u.ID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, prof)
	}
	return out, nil
}

// UpdateInput changes base account fields. At least one must be set.
type UpdateInput struct {
	Name               *string `json:"name"`
	Email              *string `json:"email" validate:"omitempty,email"`
	RegistrationNumber *string `json:"registration_number"`
}

// Update changes a user's base fields.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id string, in UpdateInput) (domain.UserProfile, error) {
	if err := s.authz.Authorize(ctx, p, auth.UserResource{UserID: id}, auth.PermUserUpdate); err != nil {
		return domain.UserProfile{}, err
	}
	if in.Name == nil && in.Email == nil && in.RegistrationNumber == nil {
		return domain.UserProfile{}, apperr.Invalid("nothing to update")
	}
	if err := validate.Struct(in); err != nil {
		return domain.UserProfile{}, err
	}

	var before, after domain.UserProfile
	err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		cur, err := s.profile(ctx, tx, id)
		if err != nil {
			return err
		}
		before = cur
		u := cur.User
		if in.Name != nil {
			if u.Name = strings.TrimSpace(*in.Name); u.Name == "" {
				return apperr.Invalid("name must not be empty")
			}
		}
		if in.Email != nil {
			u.Email = strings.TrimSpace(strings.ToLower(*in.Email))
		}
		if in.RegistrationNumber != nil {
			u.RegistrationNumber = strings.TrimSpace(*in.RegistrationNumber)
		}
		u.UpdatedAt = s.now().UTC()
		if err := checkUnique(ctx, tx, u); err != nil {
			return err
		}
		if err := tx.Users().Update(ctx, u); err != nil {
			return err
		}
		after = cur
		after.User = u
		return nil
	})
	if err != nil {
		return domain.UserProfile{}, apperr.Internal("update user", err)
	}

	if _, err := s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "user",
		EntityID:    id,
		Action:      "user.update",
		Before:      before.User,
		After:       after.User,
		Description: fmt.Sprintf("user %s updated", id),
	}); err != nil {
		return domain.UserProfile{}, err
	}
	return after, nil
}

// ChangePassword replaces the caller's own password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, p *auth.Principal, id, current, next string) error {
	if err := s.authz.Authorize(ctx, p, auth.UserResource{UserID: id}, auth.PermUserUpdate); err != nil {
		return err
	}
	if p.UserID != id {
		return &auth.DeniedError{Required: []string{auth.PermUserUpdate}}
	}
	if current == "" || next == "" {
		return apperr.Invalid("current and new password are required")
	}
	u, err := s.store.Users().Get(ctx, id)
	if err != nil {
		return apperr.Internal("get user", err)
	}
	if err := auth.VerifyPassword(u.PasswordHash, current); err != nil {
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		return tx.Users().SetPassword(ctx, id, hash)
	}); err != nil {
		return apperr.Internal("set password", err)
	}
	_, err = s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "user",
		EntityID:    id,
		Action:      "user.password_change",
		Description: "password changed",
	})
	return err
}

// Delete removes a user and the specialization records. Students with enrollments are
// kept.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if err := s.authz.Authorize(ctx, p, auth.UserResource{UserID: id}, auth.PermUserDelete); err != nil {
		return err
	}
	var before domain.UserProfile
	err := s.store.RunInTx(ctx, func(tx domain.Repository) error {
		cur, err := s.profile(ctx, tx, id)
		if err != nil {
			return err
		}
		before = cur
		n, err := tx.Enrollments().CountByStudent(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("user has %d enrollments", n)
		}
		return tx.Users().Delete(ctx, id)
	})
	if err != nil {
		return apperr.Internal("delete user", err)
	}
	_, err = s.audit.Record(ctx, audit.Record{
		ActorID:     p.UserID,
		Entity:      "user",
		EntityID:    id,
		Action:      "user.delete",
		Before:      before,
		Description: fmt.Sprintf("user %s deleted", before.Email),
	})
	return err
}
