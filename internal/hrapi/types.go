package hrapi

import "fmt"

// User is the backend's user record. Timestamps are kept as the ISO-8601
// strings the backend emits (no zone designator).
type User struct {
	ID          int       `json:"id" yaml:"id"`
	Username    string    `json:"username" yaml:"username"`
	Email       string    `json:"email" yaml:"email"`
	FirstName   string    `json:"first_name" yaml:"first_name"`
	LastName    string    `json:"last_name" yaml:"last_name"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
	CreatedAt   string    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt   string    `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Roles       []RoleRef `json:"roles,omitempty" yaml:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// RoleRef is a role as embedded in a user record.
type RoleRef struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Role is a role with its granted permissions.
type Role struct {
	ID          int          `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
}

// Permission is a named capability.
type Permission struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// UserPage is one page of the user listing.
type UserPage struct {
	Users       []User `json:"users" yaml:"users"`
	Total       int    `json:"total" yaml:"total"`
	Pages       int    `json:"pages" yaml:"pages"`
	CurrentPage int    `json:"current_page" yaml:"current_page"`
}

// Credentials is the login request. Username may also hold an email address.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the self-service sign-up request.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ProfileUpdate changes the signed-in user's own record. Nil fields are left
// untouched by the backend.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// UserInput is the admin create/update request for a user. On update, nil
// fields are not sent.
type UserInput struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
	RoleIDs   []int   `json:"role_ids,omitempty"`
}

// RoleInput is the create/update request for a role.
type RoleInput struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	PermissionIDs []int   `json:"permission_ids,omitempty"`
}

// PermissionInput is the create/update request for a permission.
type PermissionInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Payload is a loosely-typed backend response, passed through unchanged by
// forwarding operations.
type Payload map[string]any

// String returns the string value at key, or "".
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Message returns the backend's "message" field.
func (p Payload) Message() string {
	return p.String("message")
}

// Ptr returns a pointer to v, for filling optional request fields.
func Ptr[T any](v T) *T {
	return &v
}
