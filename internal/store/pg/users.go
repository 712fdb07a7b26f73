package pg

import (
	"context"
	"strings"

	"extensao.org/internal/apperr"
	"extensao.org/internal/auth"
	"extensao.org/internal/domain"
)

const userColumns = `id, email, name, coalesce(registration_number, ''), password_hash, created_at, updated_at`

type users struct{ db dbtx }

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.RegistrationNumber, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r users) Create(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		insert into users (id, email, name, registration_number, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, nullable(u.RegistrationNumber), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return mapErr(err, "user")
}

func (r users) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	return u, mapErr(err, "user")
}

func (r users) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email) = lower($1)`, strings.TrimSpace(email)))
	return u, mapErr(err, "user")
}

func (r users) List(ctx context.Context, f domain.UserFilter) ([]domain.User, error) {
	query := `select ` + userColumns + ` from users`
	var args []any
	if f.Role != "" {
		query += ` where exists (select 1 from user_roles ur where ur.user_id = users.id and ur.role_name = $1)`
		args = append(args, f.Role)
	}
	query += ` order by created_at desc, id desc`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "users")
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r users) Update(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		update users set email = $2, name = $3, registration_number = $4, updated_at = $5
		where id = $1
	`, u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.Name, nullable(u.RegistrationNumber), u.UpdatedAt)
	if err != nil {
		return mapErr(err, "user")
	}
	return affected(res, "user")
}

func (r users) SetPassword(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, id, hash)
	if err != nil {
		return mapErr(err, "user")
	}
	return affected(res, "user")
}

// Delete removes the user. Roles, specializations and responsibilities cascade; an
// enrollment still referencing the student row blocks it.
func (r users) Delete(ctx context.Context, id string) error {
	var n int
	if err := r.db.QueryRowContext(ctx, `select count(*) from enrollments where student_id = $1`, id).Scan(&n); err != nil {
		return mapErr(err, "enrollments")
	}
	if n > 0 {
		return apperr.Conflict("user has enrollments")
	}
	res, err := r.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return mapErr(err, "user")
	}
	return affected(res, "user")
}

func (r users) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		`select exists (select 1 from users where lower(email) = lower($1) and id <> $2)`,
		strings.TrimSpace(email), exceptID).Scan(&taken)
	return taken, mapErr(err, "user")
}

func (r users) RegistrationTaken(ctx context.Context, number, exceptID string) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		`select exists (select 1 from users where registration_number = $1 and id <> $2)`,
		number, exceptID).Scan(&taken)
	return taken, mapErr(err, "user")
}

func (r users) AssignRoles(ctx context.Context, userID string, roles []string) error {
	for _, role := range roles {
		if _, err := r.db.ExecContext(ctx, `
			insert into user_roles (user_id, role_name) values ($1, $2)
			on conflict do nothing
		`, userID, role); err != nil {
			return mapErr(err, "user role")
		}
	}
	return nil
}

func (r users) Roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `select role_name from user_roles where user_id = $1 order by role_name`, userID)
	if err != nil {
		return nil, mapErr(err, "user roles")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

type profiles struct{ db dbtx }

const studentColumns = `user_id, program, semester, status, accumulated_hours, remaining_hours`

func scanStudent(row scanner) (domain.Student, error) {
	var s domain.Student
	err := row.Scan(&s.UserID, &s.Program, &s.Semester, &s.Status, &s.AccumulatedHours, &s.RemainingHours)
	return s, err
}

func (r profiles) CreateStudent(ctx context.Context, s domain.Student) error {
	if s.Status == "" {
		s.Status = domain.StudentActive
	}
	_, err := r.db.ExecContext(ctx, `
		insert into students (`+studentColumns+`) values ($1, $2, $3, $4, $5, $6)
	`, s.UserID, s.Program, s.Semester, s.Status, s.AccumulatedHours, s.RemainingHours)
	return mapErr(err, "student")
}

func (r profiles) GetStudent(ctx context.Context, userID string) (domain.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `select `+studentColumns+` from students where user_id = $1`, userID))
	return s, mapErr(err, "student")
}

func (r profiles) LockStudent(ctx context.Context, userID string) (domain.Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx,
		`select `+studentColumns+` from students where user_id = $1 for update`, userID))
	return s, mapErr(err, "student")
}

func (r profiles) UpdateStudentHours(ctx context.Context, s domain.Student) error {
	res, err := r.db.ExecContext(ctx, `
		update students set accumulated_hours = $2, remaining_hours = $3 where user_id = $1
	`, s.UserID, s.AccumulatedHours, s.RemainingHours)
	if err != nil {
		return mapErr(err, "student")
	}
	return affected(res, "student")
}

func (r profiles) CreateProfessor(ctx context.Context, p domain.Professor) error {
	_, err := r.db.ExecContext(ctx, `insert into professors (user_id, area, department) values ($1, $2, $3)`,
		p.UserID, p.Area, p.Department)
	return mapErr(err, "professor")
}

func (r profiles) GetProfessor(ctx context.Context, userID string) (domain.Professor, error) {
	var p domain.Professor
	err := r.db.QueryRowContext(ctx, `select user_id, area, department from professors where user_id = $1`, userID).
		Scan(&p.UserID, &p.Area, &p.Department)
	return p, mapErr(err, "professor")
}

func (r profiles) CreateCommitteeMember(ctx context.Context, m domain.CommitteeMember) error {
	_, err := r.db.ExecContext(ctx, `insert into committee_members (user_id, designation, function) values ($1, $2, $3)`,
		m.UserID, m.Designation, m.Function)
	return mapErr(err, "committee member")
}

func (r profiles) GetCommitteeMember(ctx context.Context, userID string) (domain.CommitteeMember, error) {
	var m domain.CommitteeMember
	err := r.db.QueryRowContext(ctx, `select user_id, designation, function from committee_members where user_id = $1`, userID).
		Scan(&m.UserID, &m.Designation, &m.Function)
	return m, mapErr(err, "committee member")
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

