package memory

import (
	"context"
	"slices"

	"extensao.org/internal/apperr"
	"extensao.org/internal/domain"
)

type users struct{ v view }

func (r users) Create(_ context.Context, u domain.User) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return apperr.Conflict("user %s already exists", u.ID)
		}
		if emailTaken(st, u.Email, "") {
			return apperr.Conflict("email already registered")
		}
		if u.RegistrationNumber != "" && registrationTaken(st, u.RegistrationNumber, "") {
			return apperr.Conflict("registration number already registered")
		}
		u.Email = normEmail(u.Email)
		st.users[u.ID] = u
		return nil
	})
}

func (r users) Get(_ context.Context, id string) (domain.User, error) {
	var out domain.User
	err := r.v.read(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperr.NotFound("user")
		}
		out = u
		return nil
	})
	return out, err
}

func (r users) GetByEmail(_ context.Context, email string) (domain.User, error) {
	var out domain.User
	err := r.v.read(func(st *state) error {
		email = normEmail(email)
		for _, u := range st.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return apperr.NotFound("user")
	})
	return out, err
}

func (r users) List(_ context.Context, f domain.UserFilter) ([]domain.User, error) {
	var out []domain.User
	err := r.v.read(func(st *state) error {
		for id, u := range st.users {
			if f.Role != "" && !slices.Contains(st.roles[id], f.Role) {
				continue
			}
			out = append(out, u)
		}
		return nil
	})
	sortNewest(out, func(u domain.User) (int64, string) { return u.CreatedAt.UnixNano(), u.ID })
	return out, err
}

func (r users) Update(_ context.Context, u domain.User) error {
	return r.v.write(func(st *state) error {
		cur, ok := st.users[u.ID]
		if !ok {
			return apperr.NotFound("user")
		}
		if emailTaken(st, u.Email, u.ID) {
			return apperr.Conflict("email already registered")
		}
		if u.RegistrationNumber != "" && registrationTaken(st, u.RegistrationNumber, u.ID) {
			return apperr.Conflict("registration number already registered")
		}
		cur.Email = normEmail(u.Email)
		cur.Name = u.Name
		cur.RegistrationNumber = u.RegistrationNumber
		cur.UpdatedAt = u.UpdatedAt
		st.users[u.ID] = cur
		return nil
	})
}

func (r users) SetPassword(_ context.Context, id, hash string) error {
	return r.v.write(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return apperr.NotFound("user")
		}
		u.PasswordHash = hash
		st.users[id] = u
		return nil
	})
}

func (r users) Delete(_ context.Context, id string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return apperr.NotFound("user")
		}
		for _, e := range st.enrollments {
			if e.StudentID == id {
				return apperr.Conflict("user has enrollments")
			}
		}
		delete(st.users, id)
		delete(st.roles, id)
		delete(st.students, id)
		delete(st.professors, id)
		delete(st.committee, id)
		for aid, a := range st.activities {
			if i := slices.Index(a.Responsibles, id); i >= 0 {
				a.Responsibles = slices.Delete(slices.Clone(a.Responsibles), i, i+1)
				st.activities[aid] = a
			}
		}
		return nil
	})
}

func (r users) EmailTaken(_ context.Context, email, exceptID string) (bool, error) {
	var taken bool
	err := r.v.read(func(st *state) error {
		taken = emailTaken(st, email, exceptID)
		return nil
	})
	return taken, err
}

func (r users) RegistrationTaken(_ context.Context, number, exceptID string) (bool, error) {
	var taken bool
	err := r.v.read(func(st *state) error {
		taken = registrationTaken(st, number, exceptID)
		return nil
	})
	return taken, err
}

func (r users) AssignRoles(_ context.Context, userID string, roles []string) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.users[userID]; !ok {
			return apperr.NotFound("user")
		}
		cur := st.roles[userID]
		for _, role := range roles {
			if !slices.Contains(cur, role) {
				cur = append(cur, role)
			}
		}
		st.roles[userID] = cur
		return nil
	})
}

func (r users) Roles(_ context.Context, userID string) ([]string, error) {
	var out []string
	err := r.v.read(func(st *state) error {
		out = slices.Clone(st.roles[userID])
		return nil
	})
	slices.Sort(out)
	return out, err
}

func emailTaken(st *state, email, exceptID string) bool {
	email = normEmail(email)
	for id, u := range st.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func registrationTaken(st *state, number, exceptID string) bool {
	for id, u := range st.users {
		if id != exceptID && u.RegistrationNumber == number {
			return true
		}
	}
	return false
}

type profiles struct{ v view }

func (r profiles) CreateStudent(_ context.Context, s domain.Student) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.users[s.UserID]; !ok {
			return apperr.NotFound("user")
		}
		if _, ok := st.students[s.UserID]; ok {
			return apperr.Conflict("student record already exists")
		}
		st.students[s.UserID] = s
		return nil
	})
}

func (r profiles) GetStudent(_ context.Context, userID string) (domain.Student, error) {
	var out domain.Student
	err := r.v.read(func(st *state) error {
		s, ok := st.students[userID]
		if !ok {
			return apperr.NotFound("student")
		}
		out = s
		return nil
	})
	return out, err
}

// LockStudent is GetStudent: transactions already hold the store exclusively.
func (r profiles) LockStudent(ctx context.Context, userID string) (domain.Student, error) {
	return r.GetStudent(ctx, userID)
}

func (r profiles) UpdateStudentHours(_ context.Context, s domain.Student) error {
	return r.v.write(func(st *state) error {
		cur, ok := st.students[s.UserID]
		if !ok {
			return apperr.NotFound("student")
		}
		cur.AccumulatedHours = s.AccumulatedHours
		cur.RemainingHours = s.RemainingHours
		st.students[s.UserID] = cur
		return nil
	})
}

func (r profiles) CreateProfessor(_ context.Context, p domain.Professor) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.users[p.UserID]; !ok {
			return apperr.NotFound("user")
		}
		if _, ok := st.professors[p.UserID]; ok {
			return apperr.Conflict("professor record already exists")
		}
		st.professors[p.UserID] = p
		return nil
	})
}

func (r profiles) GetProfessor(_ context.Context, userID string) (domain.Professor, error) {
	var out domain.Professor
	err := r.v.read(func(st *state) error {
		p, ok := st.professors[userID]
		if !ok {
			return apperr.NotFound("professor")
		}
		out = p
		return nil
	})
	return out, err
}

func (r profiles) CreateCommitteeMember(_ context.Context, m domain.CommitteeMember) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.users[m.UserID]; !ok {
			return apperr.NotFound("user")
		}
		if _, ok := st.committee[m.UserID]; ok {
			return apperr.Conflict("committee member record already exists")
		}
		st.committee[m.UserID] = m
		return nil
	})
}

func (r profiles) GetCommitteeMember(_ context.Context, userID string) (domain.CommitteeMember, error) {
	var out domain.CommitteeMember
	err := r.v.read(func(st *state) error {
		m, ok := st.committee[userID]
		if !ok {
			return apperr.NotFound("committee member")
		}
		out = m
		return nil
	})
	return out, err
}
