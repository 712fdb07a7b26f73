package domain

import "context"

// Missing rows are reported as errors wrapping apperr.ErrNotFound and uniqueness
// violations as errors wrapping apperr.ErrConflict. Lock* variants take a row lock when
// called inside RunInTx.

// UserRepo manages base accounts and role assignments.
type UserRepo interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, f UserFilter) ([]User, error)
	Update(ctx context.Context, u User) error
	SetPassword(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
	EmailTaken(ctx context.Context, email, exceptID string) (bool, error)
	RegistrationTaken(ctx context.Context, number, exceptID string) (bool, error)
	AssignRoles(ctx context.Context, userID string, roles []string) error
	Roles(ctx context.Context, userID string) ([]string, error)
}

// ProfileRepo manages the role specialization records.
type ProfileRepo interface {
	CreateStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, userID string) (Student, error)
	LockStudent(ctx context.Context, userID string) (Student, error)
	UpdateStudentHours(ctx context.Context, s Student) error
	CreateProfessor(ctx context.Context, p Professor) error
	GetProfessor(ctx context.Context, userID string) (Professor, error)
	CreateCommitteeMember(ctx context.Context, m CommitteeMember) error
	GetCommitteeMember(ctx context.Context, userID string) (CommitteeMember, error)
}

// ActivityRepo manages activities, their responsibles and categories.
type ActivityRepo interface {
	Create(ctx context.Context, a Activity) error
	Get(ctx context.Context, id string) (Activity, error)
	List(ctx context.Context, f ActivityFilter) ([]Activity, error)
	Update(ctx context.Context, a Activity) error
	Delete(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	DeleteCategory(ctx context.Context, id string) error
	CountByCategory(ctx context.Context, categoryID string) (int, error)
}

// EnrollmentRepo manages enrollments.
type EnrollmentRepo interface {
	Create(ctx context.Context, e Enrollment) error
	Get(ctx context.Context, id string) (Enrollment, error)
	Lock(ctx context.Context, id string) (Enrollment, error)
	Find(ctx context.Context, studentID, activityID string) (Enrollment, error)
	List(ctx context.Context, f EnrollmentFilter) ([]Enrollment, error)
	Update(ctx context.Context, e Enrollment) error
	Delete(ctx context.Context, id string) error
	CountByStudent(ctx context.Context, studentID string) (int, error)
	CountByActivity(ctx context.Context, activityID string) (int, error)
	// MaxValidatedHours is the largest validated-hours counter among the activity's
	// enrollments, zero when it has none.
	MaxValidatedHours(ctx context.Context, activityID string) (int, error)
}

// ProofRepo manages proofs of completion.
type ProofRepo interface {
	Create(ctx context.Context, p Proof) error
	Get(ctx context.Context, id string) (Proof, error)
	Lock(ctx context.Context, id string) (Proof, error)
	GetByEnrollment(ctx context.Context, enrollmentID string) (Proof, error)
	List(ctx context.Context, f ProofFilter) ([]Proof, error)
	UpdateStatus(ctx context.Context, p Proof) error
	Delete(ctx context.Context, id string) error
}

// Repository groups the repositories of one connection or transaction.
type Repository interface {
	Users() UserRepo
	Profiles() ProfileRepo
	Activities() ActivityRepo
	Enrollments() EnrollmentRepo
	Proofs() ProofRepo
}

// Store is a Repository that can run a closure atomically. RunInTx commits when fn
// returns nil and rolls back every write otherwise.
type Store interface {
	Repository
	RunInTx(ctx context.Context, fn func(tx Repository) error) error
}
