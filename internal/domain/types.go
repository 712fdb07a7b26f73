// Package domain holds the entities shared by the workflows and the stores.
package domain

import (
	"time"

	"extensao.org/internal/auth"
)

// StudentStatus is the lifecycle of a student record.
type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentInactive  StudentStatus = "inactive"
	StudentGraduated StudentStatus = "graduated"
)

// ActivityStatus is the lifecycle of an activity.
type ActivityStatus string

const (
	ActivityPlanned    ActivityStatus = "planned"
	ActivityInProgress ActivityStatus = "in_progress"
	ActivityCompleted  ActivityStatus = "completed"
	ActivityCanceled   ActivityStatus = "canceled"
)

// Valid reports whether s is a known status.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityPlanned, ActivityInProgress, ActivityCompleted, ActivityCanceled:
		return true
	}
	return false
}

// EnrollmentStatus is the validation status of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentApproved EnrollmentStatus = "approved"
	EnrollmentRejected EnrollmentStatus = "rejected"
)

func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentPending, EnrollmentApproved, EnrollmentRejected:
		return true
	}
	return false
}

// ProofStatus is the approval status of a proof of completion.
type ProofStatus string

const (
	ProofPending  ProofStatus = "pending"
	ProofAccepted ProofStatus = "accepted"
	ProofRejected ProofStatus = "rejected"
)

func (s ProofStatus) Valid() bool {
	switch s {
	case ProofPending, ProofAccepted, ProofRejected:
		return true
	}
	return false
}

// DocumentType tags the kind of document attached to a proof.
type DocumentType string

const (
	DocumentCertificate DocumentType = "certificate"
	DocumentDeclaration DocumentType = "declaration"
	DocumentOther       DocumentType = "other"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocumentCertificate, DocumentDeclaration, DocumentOther:
		return true
	}
	return false
}

// User is the base account.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registration_number,omitempty"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Student is the specialization of a user enrolled in a program.
type Student struct {
	UserID           string        `json:"user_id"`
	Program          string        `json:"program"`
	Semester         int           `json:"semester"`
	Status           StudentStatus `json:"status"`
	AccumulatedHours int           `json:"accumulated_hours"`
	RemainingHours   int           `json:"remaining_hours"`
}

// Professor is the specialization of a teaching user.
type Professor struct {
	UserID     string `json:"user_id"`
	Area       string `json:"area"`
	Department string `json:"department"`
}

// CommitteeMember is the specialization of a committee user.
type CommitteeMember struct {
	UserID      string `json:"user_id"`
	Designation string `json:"designation"`
	Function    string `json:"function"`
}

// UserProfile is a user with roles and specialization records.
type UserProfile struct {
	User
	Roles     []string         `json:"roles"`
	Student   *Student         `json:"student,omitempty"`
	Professor *Professor       `json:"professor,omitempty"`
	Committee *CommitteeMember `json:"committee_member,omitempty"`
}

// Category groups activities.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Activity is an extension activity with a total hour budget.
type Activity struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Term         string         `json:"term"`
	HourBudget   int            `json:"hour_budget"`
	CategoryID   string         `json:"category_id,omitempty"`
	Status       ActivityStatus `json:"status"`
	Responsibles []string       `json:"responsibles"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Resource exposes the activity to the permission resolver.
func (a Activity) Resource() auth.ActivityResource {
	return auth.ActivityResource{ActivityID: a.ID, Responsibles: a.Responsibles}
}

// Enrollment links one student to one activity.
type Enrollment struct {
	ID             string           `json:"id"`
	StudentID      string           `json:"student_id"`
	ActivityID     string           `json:"activity_id"`
	ValidatedHours int              `json:"validated_hours"`
	Status         EnrollmentStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Resource exposes the enrollment to the permission resolver; the student owns it.
func (e Enrollment) Resource() auth.StudentResource {
	return auth.StudentResource{StudentID: e.StudentID}
}

// Proof is the proof of completion of one enrollment. StudentID is derived from the
// enrollment and never stored on its own.
type Proof struct {
	ID           string       `json:"id"`
	EnrollmentID string       `json:"enrollment_id"`
	StudentID    string       `json:"student_id"`
	ClaimedHours int          `json:"claimed_hours"`
	DocumentType DocumentType `json:"document_type"`
	FilePath     string       `json:"file_path,omitempty"`
	Status       ProofStatus  `json:"status"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	DecidedAt    *time.Time   `json:"decided_at,omitempty"`
	DecidedBy    string       `json:"decided_by,omitempty"`
}

func (p Proof) Resource() auth.StudentResource {
	return auth.StudentResource{StudentID: p.StudentID}
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role string
}

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	CategoryID string
	Status     ActivityStatus
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	StudentID  string
	ActivityID string
	Status     EnrollmentStatus
}

// ProofFilter narrows proof listings.
type ProofFilter struct {
	StudentID string
	Status    ProofStatus
}
