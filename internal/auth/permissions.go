package auth

// Role names seeded in the catalog.
const (
	RoleStudent         = "student"
	RoleProfessor       = "professor"
	RoleCommitteeMember = "committee_member"
	RoleAdmin           = "admin"
)

// Permission tokens follow domain.action[:own|:any]. Handlers require the bare domain.action
// form; the resolver expands it against the scoped grants.
const (
	PermUserRead   = "user.read"
	PermUserUpdate = "user.update"
	PermUserDelete = "user.delete"

	PermActivityCreate = "activity.create"
	PermActivityRead   = "activity.read"
	PermActivityUpdate = "activity.update"
	PermActivityDelete = "activity.delete"

	PermEnrollmentCreate = "enrollment.create"
	PermEnrollmentRead   = "enrollment.read"
	PermEnrollmentManage = "enrollment.manage"

	PermProofCreate = "proof.create"
	PermProofRead   = "proof.read"
	PermProofManage = "proof.manage"

	PermCategoryRead   = "category.read"
	PermCategoryManage = "category.manage"

	PermAuditRead = "audit.read"

	PermAdminAccess      = "admin.access"
	PermAdminManageRoles = "admin.manage_roles"
)

// Permission is a catalog entry.
type Permission struct {
	Token       string
	Description string
}

// BuiltinPermissions lists every token known to the service.
var BuiltinPermissions = []Permission{
	{Token: "user.read:own", Description: "Read own user record"},
	{Token: "user.update:own", Description: "Update own user record"},
	{Token: "user.read:any", Description: "Read any user"},
	{Token: "user.update:any", Description: "Update any user"},
	{Token: "user.delete:any", Description: "Delete users"},

	{Token: "activity.create:own", Description: "Create an activity as a responsible"},
	{Token: "activity.create:any", Description: "Create activities for any responsible"},
	{Token: "activity.read:any", Description: "Read any activity"},
	{Token: "activity.update:own", Description: "Update activities one is responsible for"},
	{Token: "activity.update:any", Description: "Update any activity"},
	{Token: "activity.delete:own", Description: "Delete activities one is responsible for"},
	{Token: "activity.delete:any", Description: "Delete any activity"},

	{Token: "enrollment.create:own", Description: "Enroll in an activity"},
	{Token: "enrollment.read:own", Description: "Read own enrollments"},
	{Token: "enrollment.manage:any", Description: "Manage student enrollments"},

	{Token: "proof.create:own", Description: "Submit proof of completion"},
	{Token: "proof.read:own", Description: "Read own proofs"},
	{Token: "proof.manage:any", Description: "Review and manage proofs"},

	{Token: "category.read:any", Description: "List activity categories"},
	{Token: "category.manage:any", Description: "Manage activity categories"},

	{Token: "audit.read:any", Description: "Read the audit trail"},

	{Token: "admin.access", Description: "Access administration"},
	{Token: "admin.manage_roles", Description: "Manage roles and the permission catalog"},
}

// DefaultGrants is the seeded role to permission mapping.
func DefaultGrants() StaticGrants {
	all := make([]string, 0, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		all = append(all, p.Token)
	}
	return StaticGrants{
		RoleStudent: {
			"user.read:own", "user.update:own", "activity.read:any",
			"enrollment.create:own", "enrollment.read:own",
			"proof.create:own", "proof.read:own", "category.read:any",
		},
		RoleProfessor: {
			"user.read:own", "user.update:own",
			"activity.create:own", "activity.update:own", "activity.delete:own", "activity.read:any",
			"category.read:any",
		},
		RoleCommitteeMember: {
			"user.read:any", "user.update:own", "activity.read:any",
			"enrollment.manage:any", "proof.manage:any",
			"category.manage:any", "category.read:any", "audit.read:any",
		},
		RoleAdmin: all,
	}
}
