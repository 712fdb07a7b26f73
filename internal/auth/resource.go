package auth

// Resource is the closed set of resource kinds whose ownership the resolver understands.
// Only the types in this file implement it.
type Resource interface {
	resource()
}

// UserResource is a user account; the account holder owns it.
type UserResource struct{ UserID string }

// StudentResource is anything owned by a student: enrollments and proofs.
type StudentResource struct{ StudentID string }

// CommitteeResource is owned by a committee member.
type CommitteeResource struct{ MemberID string }

// ActivityResource is owned by every responsible user of the activity.
type ActivityResource struct {
	ActivityID   string
	Responsibles []string
}

func (UserResource) resource()      {}
func (StudentResource) resource()   {}
func (CommitteeResource) resource() {}
func (ActivityResource) resource()  {}

func (r UserResource) OwnerID() string      { return r.UserID }
func (r StudentResource) OwnerID() string   { return r.StudentID }
func (r CommitteeResource) OwnerID() string { return r.MemberID }

// OwnerIDs lists the responsible users.
func (r ActivityResource) OwnerIDs() []string { return r.Responsibles }

// ownedBy reports whether userID owns res. A nil resource is owned by nobody.
func ownedBy(res Resource, userID string) bool {
	if userID == "" {
		return false
	}
	switch r := res.(type) {
	case UserResource:
		return r.OwnerID() == userID
	case StudentResource:
		return r.OwnerID() == userID
	case CommitteeResource:
		return r.OwnerID() == userID
	case ActivityResource:
		for _, id := range r.OwnerIDs() {
			if id == userID {
				return true
			}
		}
		return false
	default:
		return false
	}
}
