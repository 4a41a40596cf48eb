package session

import (
	"sort"

	"github.com/felixgeelhaar/hradmin/internal/hrapi"
)

// Status is the lifecycle phase of the session.
type Status int

const (
	// StatusInitializing lasts while a stored credential is being validated at startup.
	StatusInitializing Status = iota
	StatusUnauthenticated
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is an immutable view of the signed-in user and the role and
// permission names the backend reported for them. Absent lists are empty sets.
type Identity struct {
	user        hrapi.User
	roles       map[string]struct{}
	permissions map[string]struct{}
}

// NewIdentity builds an Identity from the backend's user object.
func NewIdentity(u hrapi.User) *Identity {
	id := &Identity{
		roles:       make(map[string]struct{}, len(u.Roles)),
		permissions: make(map[string]struct{}, len(u.Permissions)),
	}
	for _, r := range u.Roles {
		id.roles[r.Name] = struct{}{}
	}
	for _, p := range u.Permissions {
		id.permissions[p] = struct{}{}
	}

	id.user = u
	id.user.Roles = append([]hrapi.RoleRef(nil), u.Roles...)
	id.user.Permissions = append([]string(nil), u.Permissions...)
	return id
}

// User returns a copy of the user record.
func (i *Identity) User() hrapi.User {
	if i == nil {
		return hrapi.User{}
	}
	u := i.user
	u.Roles = append([]hrapi.RoleRef(nil), i.user.Roles...)
	u.Permissions = append([]string(nil), i.user.Permissions...)
	return u
}

// Roles returns the role names, sorted.
func (i *Identity) Roles() []string {
	if i == nil {
		return []string{}
	}
	return sortedKeys(i.roles)
}

// Permissions returns the permission names, sorted.
func (i *Identity) Permissions() []string {
	if i == nil {
		return []string{}
	}
	return sortedKeys(i.permissions)
}

// HasPermission reports whether name is in the permission set. A nil
// Identity has no permissions.
func (i *Identity) HasPermission(name string) bool {
	if i == nil {
		return false
	}
	_, ok := i.permissions[name]
	return ok
}

// HasRole reports whether a role with this name is held.
func (i *Identity) HasRole(name string) bool {
	if i == nil {
		return false
	}
	_, ok := i.roles[name]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot is the (status, credential, identity) triple. The session
// replaces it as a whole; a Snapshot value is never modified after publication.
type Snapshot struct {
	Status     Status
	Credential string
	Identity   *Identity
}

// Authenticated reports whether the snapshot holds a signed-in session.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// Result is the outcome of a network-backed session operation. Callers
// branch on Success; Error holds a human-readable message when it is false.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok wraps a successful outcome.
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail wraps a failed outcome.
func Fail[T any](message string) Result[T] {
	return Result[T]{Error: message}
}
