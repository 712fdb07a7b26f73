// Package memory is an in-process implementation of the domain store. Transactions are
// serialized and applied to a private copy that replaces the live state on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
)

type state struct {
	users       map[string]domain.User
	roles       map[string][]string
	students    map[string]domain.Student
	professors  map[string]domain.Professor
	committee   map[string]domain.CommitteeMember
	categories  map[string]domain.Category
	activities  map[string]domain.Activity
	enrollments map[string]domain.Enrollment
	proofs      map[string]domain.Proof
}

func newState() *state {
	return &state{
		users:       map[string]domain.User{},
		roles:       map[string][]string{},
		students:    map[string]domain.Student{},
		professors:  map[string]domain.Professor{},
		committee:   map[string]domain.CommitteeMember{},
		categories:  map[string]domain.Category{},
		activities:  map[string]domain.Activity{},
		enrollments: map[string]domain.Enrollment{},
		proofs:      map[string]domain.Proof{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = append([]string(nil), v...)
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.professors {
		c.professors[k] = v
	}
	for k, v := range s.committee {
		c.committee[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.activities {
		v.Responsibles = append([]string(nil), v.Responsibles...)
		c.activities[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.proofs {
		c.proofs[k] = v
	}
	return c
}

// Store keeps every entity in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex
	st *state

	auditMu sync.Mutex
	audit   []audit.Entry

	grants auth.StaticGrants
}

// New returns an empty store whose grant source serves auth.DefaultGrants.
func New() *Store {
	return &Store{st: newState(), grants: auth.DefaultGrants()}
}

var _ domain.Store = (*Store)(nil)

// view runs repository calls either against the live state under the store lock or, inside
// RunInTx, against the transaction's private copy. Every write checks its preconditions
// before mutating, so a failed single write leaves no trace.
type view struct {
	s  *Store
	tx *state
}

func (v view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return fn(v.s.st)
}

func (v view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.st)
}

func (s *Store) live() view { return view{s: s} }

func (s *Store) Users() domain.UserRepo             { return users{s.live()} }
func (s *Store) Profiles() domain.ProfileRepo       { return profiles{s.live()} }
func (s *Store) Activities() domain.ActivityRepo    { return activities{s.live()} }
func (s *Store) Enrollments() domain.EnrollmentRepo { return enrollments{s.live()} }
func (s *Store) Proofs() domain.ProofRepo           { return proofs{s.live()} }

type txRepo struct{ v view }

func (t txRepo) Users() domain.UserRepo             { return users{t.v} }
func (t txRepo) Profiles() domain.ProfileRepo       { return profiles{t.v} }
func (t txRepo) Activities() domain.ActivityRepo    { return activities{t.v} }
func (t txRepo) Enrollments() domain.EnrollmentRepo { return enrollments{t.v} }
func (t txRepo) Proofs() domain.ProofRepo           { return proofs{t.v} }

// RunInTx runs fn with exclusive access to a copy of the state. The copy replaces the
// live state only when fn returns nil; a panic discards it as well.
func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Internal("begin tx", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(txRepo{v: view{s: s, tx: work}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperr.Internal("commit tx", err)
	}
	s.st = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// SetGrants replaces the grants served by LoadGrants.
func (s *Store) SetGrants(g auth.StaticGrants) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = g
}

// LoadGrants implements auth.GrantSource.
func (s *Store) LoadGrants(ctx context.Context) (map[string][]string, error) {
	s.mu.RLock()
	g := s.grants
	s.mu.RUnlock()
	return g.LoadGrants(ctx)
}

// FindAccountByEmail implements auth.AccountStore.
func (s *Store) FindAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	u, err := s.Users().GetByEmail(ctx, email)
	if err != nil {
		return auth.Account{}, err
	}
	return account(u), nil
}

// FindAccount implements auth.AccountStore.
func (s *Store) FindAccount(ctx context.Context, id string) (auth.Account, error) {
	u, err := s.Users().Get(ctx, id)
	if err != nil {
		return auth.Account{}, err
	}
	return account(u), nil
}

// UserRoles implements auth.AccountStore.
func (s *Store) UserRoles(ctx context.Context, userID string) ([]string, error) {
	return s.Users().Roles(ctx, userID)
}

func account(u domain.User) auth.Account {
	return auth.Account{ID: u.ID, Email: u.Email, Name: u.Name, PasswordHash: u.PasswordHash}
}

// AppendAudit implements audit.Store. Entries live outside the transactional state so a
// rollback can never remove them.
func (s *Store) AppendAudit(_ context.Context, e audit.Entry) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// ListAudit implements audit.Store, newest first.
func (s *Store) ListAudit(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	out := make([]audit.Entry, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.Entity != "" && e.Entity != f.Entity {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// AuditCount returns the number of stored audit entries.
func (s *Store) AuditCount() int {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return len(s.audit)
}

func normEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func sortNewest[T any](items []T, created func(T) (int64, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := created(items[i])
		tj, idj := created(items[j])
		if ti != tj {
			return ti > tj
		}
		return idi > idj
	})
}
