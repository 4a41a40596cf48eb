package hrtest

import (
	"slices"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/felixgeelhaar/hradmin/internal/authz"
)

// Seeded accounts.
const (
	AdminUser     = "admin"
	AdminPassword = "admin123"
	HRUser        = "hr_manager"
	HRPassword    = "hr123"
	EmployeeUser  = "john_doe"
	EmployeePass  = "employee123"
)

type permission struct {
	ID          int
	Name        string
	Description string
}

type role struct {
	ID          int
	Name        string
	Description string
	Permissions []int
}

type user struct {
	ID        int
	Username  string
	Email     string
	Hash      []byte
	FirstName string
	LastName  string
	Active    bool
	Roles     []int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// store is the backend's data. Callers hold Server.mu.
type store struct {
	users       map[int]*user
	roles       map[int]*role
	permissions map[int]*permission
	nextUser    int
	nextRole    int
	nextPerm    int
	resetTokens map[string]int
	revoked     map[string]bool
}

func newStore() *store {
	s := &store{
		users:       make(map[int]*user),
		roles:       make(map[int]*role),
		permissions: make(map[int]*permission),
		nextUser:    1,
		nextRole:    1,
		nextPerm:    1,
		resetTokens: make(map[string]int),
		revoked:     make(map[string]bool),
	}

	for _, name := range authz.AllPermissions() {
		s.addPermission(name, authz.Describe(name))
	}

	grants := authz.DefaultGrants()
	for _, r := range []struct{ name, desc string }{
		{authz.RoleAdmin, "System administrator with full access"},
		{authz.RoleHR, "Human resources manager"},
		{authz.RoleEmployee, "Regular employee"},
	} {
		var ids []int
		for _, p := range grants[r.name] {
			ids = append(ids, s.permissionByName(p).ID)
		}
		s.addRole(r.name, r.desc, ids)
	}

	s.addUser(AdminUser, "admin@hrms.com", AdminPassword, "System", "Administrator", true, s.roleByName(authz.RoleAdmin).ID)
	s.addUser(HRUser, "hr@hrms.com", HRPassword, "HR", "Manager", true, s.roleByName(authz.RoleHR).ID)
	s.addUser(EmployeeUser, "john.doe@hrms.com", EmployeePass, "John", "Doe", true, s.roleByName(authz.RoleEmployee).ID)
	return s
}

func hash(password string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}

func (u *user) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.Hash, []byte(password)) == nil
}

func (s *store) addPermission(name, desc string) *permission {
	p := &permission{ID: s.nextPerm, Name: name, Description: desc}
	s.permissions[p.ID] = p
	s.nextPerm++
	return p
}

func (s *store) addRole(name, desc string, permissionIDs []int) *role {
	r := &role{ID: s.nextRole, Name: name, Description: desc, Permissions: s.existingPermissions(permissionIDs)}
	s.roles[r.ID] = r
	s.nextRole++
	return r
}

func (s *store) addUser(username, email, password, first, last string, active bool, roleIDs ...int) *user {
	now := time.Now().UTC()
	u := &user{
		ID:        s.nextUser,
		Username:  username,
		Email:     email,
		Hash:      hash(password),
		FirstName: first,
		LastName:  last,
		Active:    active,
		Roles:     s.existingRoles(roleIDs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	s.nextUser++
	return u
}

func (s *store) existingRoles(ids []int) []int {
	out := []int{}
	for _, id := range ids {
		if _, ok := s.roles[id]; ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *store) existingPermissions(ids []int) []int {
	out := []int{}
	for _, id := range ids {
		if _, ok := s.permissions[id]; ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *store) userByLogin(login string) *user {
	for _, u := range s.users {
		if u.Username == login || u.Email == login {
			return u
		}
	}
	return nil
}

func (s *store) usernameTaken(name string, except int) bool {
	for _, u := range s.users {
		if u.Username == name && u.ID != except {
			return true
		}
	}
	return false
}

func (s *store) emailTaken(email string, except int) bool {
	for _, u := range s.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

func (s *store) roleByName(name string) *role {
	for _, r := range s.roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (s *store) permissionByName(name string) *permission {
	for _, p := range s.permissions {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (s *store) permissionNames(u *user) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, rid := range u.Roles {
		r := s.roles[rid]
		if r == nil {
			continue
		}
		for _, pid := range r.Permissions {
			if p := s.permissions[pid]; p != nil && !seen[p.Name] {
				seen[p.Name] = true
				out = append(out, p.Name)
			}
		}
	}
	return out
}

func (s *store) hasPermission(u *user, name string) bool {
	return slices.Contains(s.permissionNames(u), name)
}

func (s *store) usersWithRole(roleID int) int {
	n := 0
	for _, u := range s.users {
		if slices.Contains(u.Roles, roleID) {
			n++
		}
	}
	return n
}

func (s *store) rolesWithPermission(permID int) int {
	n := 0
	for _, r := range s.roles {
		if slices.Contains(r.Permissions, permID) {
			n++
		}
	}
	return n
}

func (s *store) sortedUsers() []*user {
	out := make([]*user, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *store) sortedRoles() []*role {
	out := make([]*role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *store) sortedPermissions() []*permission {
	out := make([]*permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

const isoFormat = "2006-01-02T15:04:05.000000"

func (s *store) userJSON(u *user) map[string]any {
	roles := make([]map[string]any, 0, len(u.Roles))
	for _, rid := range u.Roles {
		if r := s.roles[rid]; r != nil {
			roles = append(roles, map[string]any{"id": r.ID, "name": r.Name, "description": r.Description})
		}
	}
	return map[string]any{
		"id":          u.ID,
		"username":    u.Username,
		"email":       u.Email,
		"first_name":  u.FirstName,
		"last_name":   u.LastName,
		"is_active":   u.Active,
		"created_at":  u.CreatedAt.Format(isoFormat),
		"updated_at":  u.UpdatedAt.Format(isoFormat),
		"roles":       roles,
		"permissions": s.permissionNames(u),
	}
}

func (s *store) roleJSON(r *role) map[string]any {
	perms := make([]map[string]any, 0, len(r.Permissions))
	for _, pid := range r.Permissions {
		if p := s.permissions[pid]; p != nil {
			perms = append(perms, permissionJSON(p))
		}
	}
	return map[string]any{"id": r.ID, "name": r.Name, "description": r.Description, "permissions": perms}
}

func permissionJSON(p *permission) map[string]any {
	return map[string]any{"id": p.ID, "name": p.Name, "description": p.Description}
}
