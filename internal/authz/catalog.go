// Package authz maps the session's permission and role predicates onto
// screens and actions. It never talks to the backend.
package authz

// Permission names seeded by the HR backend.
const (
	UserRead   = "user_read"
	UserWrite  = "user_write"
	UserDelete = "user_delete"

	RoleRead   = "role_read"
	RoleWrite  = "role_write"
	RoleDelete = "role_delete"

	PermissionRead   = "permission_read"
	PermissionWrite  = "permission_write"
	PermissionDelete = "permission_delete"
)

// Role names seeded by the HR backend.
const (
	RoleAdmin    = "Admin"
	RoleHR       = "HR"
	RoleEmployee = "Employee"
)

// Resource is a CRUD surface guarded by a read/write/delete permission triple.
type Resource struct {
	Name   string
	Read   string
	Write  string
	Delete string
}

var (
	Users       = Resource{Name: "users", Read: UserRead, Write: UserWrite, Delete: UserDelete}
	Roles       = Resource{Name: "roles", Read: RoleRead, Write: RoleWrite, Delete: RoleDelete}
	Permissions = Resource{Name: "permissions", Read: PermissionRead, Write: PermissionWrite, Delete: PermissionDelete}
)

// AllPermissions lists the seeded permissions in catalogue order.
func AllPermissions() []string {
	return []string{
		UserRead, UserWrite, UserDelete,
		RoleRead, RoleWrite, RoleDelete,
		PermissionRead, PermissionWrite, PermissionDelete,
	}
}

// DefaultGrants is the permission set each seeded role receives. The backend
// is authoritative; this mirrors its seed data for help text and fixtures.
func DefaultGrants() map[string][]string {
	return map[string][]string{
		RoleAdmin:    AllPermissions(),
		RoleHR:       {UserRead, UserWrite, RoleRead},
		RoleEmployee: {UserRead},
	}
}

// Describe returns a short human description of a seeded permission.
func Describe(permission string) string {
	switch permission {
	case UserRead:
		return "Read user information"
	case UserWrite:
		return "Create and update users"
	case UserDelete:
		return "Delete users"
	case RoleRead:
		return "Read role information"
	case RoleWrite:
		return "Create and update roles"
	case RoleDelete:
		return "Delete roles"
	case PermissionRead:
		return "Read permission information"
	case PermissionWrite:
		return "Create and update permissions"
	case PermissionDelete:
		return "Delete permissions"
	default:
		return ""
	}
}
