package hrtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func contextWithIdentity(ctx context.Context, id identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func identityFrom(ctx context.Context) identity {
	id, _ := ctx.Value(ctxKey{}).(identity)
	return id
}

// body is a decoded JSON object. Presence of a key matters for updates.
type body map[string]any

func decode(r *http.Request) body {
	b := body{}
	_ = json.NewDecoder(r.Body).Decode(&b)
	return b
}

func (b body) has(key string) bool {
	_, ok := b[key]
	return ok
}

func (b body) str(key string) string {
	s, _ := b[key].(string)
	return s
}

func (b body) integer(key string) int {
	f, _ := b[key].(float64)
	return int(f)
}

func (b body) boolean(key string, def bool) bool {
	v, ok := b[key].(bool)
	if !ok {
		return def
	}
	return v
}

func (b body) ints(key string) []int {
	raw, _ := b[key].([]any)
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

func pathID(r *http.Request, name string) int {
	id, _ := strconv.Atoi(chi.URLParam(r, name))
	return id
}

// Auth

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	for _, f := range []string{"username", "email", "password"} {
		if b.str(f) == "" {
			writeError(w, http.StatusBadRequest, f+" is required")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.usernameTaken(b.str("username"), 0) {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if s.data.emailTaken(b.str("email"), 0) {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}

	var roles []int
	if employee := s.data.roleByName("Employee"); employee != nil {
		roles = append(roles, employee.ID)
	}
	u := s.data.addUser(b.str("username"), b.str("email"), b.str("password"), b.str("first_name"), b.str("last_name"), true, roles...)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    s.data.userJSON(u),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	b := decode(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginCalls++

	if b.str("username") == "" || b.str("password") == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	u := s.data.userByLogin(b.str("username"))
	if u == nil || !u.checkPassword(b.str("password")) {
		s.metrics.Logins.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !u.Active {
		s.metrics.Logins.WithLabelValues("inactive").Inc()
		writeError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}

	token, err := s.sign(u.ID, s.ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.Logins.WithLabelValues("success").Inc()
	s.metrics.ActiveTokens.Inc()
	resp := map[string]any{"message": "Login successful", "access_token": token, "user": s.data.userJSON(u)}
	if s.omitToken {
		delete(resp, "access_token")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	s.mu.Lock()
	s.data.revoked[id.jti] = true
	s.mu.Unlock()
	s.metrics.ActiveTokens.Dec()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Successfully logged out"})
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) *user {
	u := s.data.users[identityFrom(r.Context()).userID]
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
	}
	return u
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.currentUser(w, r); u != nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": s.data.userJSON(u)})
	}
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.currentUser(w, r)
	if u == nil {
		return
	}
	if b.has("email") && s.data.emailTaken(b.str("email"), u.ID) {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}
	if b.has("first_name") {
		u.FirstName = b.str("first_name")
	}
	if b.has("last_name") {
		u.LastName = b.str("last_name")
	}
	if b.has("email") {
		u.Email = b.str("email")
	}
	u.UpdatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    s.data.userJSON(u),
	})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.currentUser(w, r)
	if u == nil {
		return
	}
	if b.str("current_password") == "" || b.str("new_password") == "" {
		writeError(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if !u.checkPassword(b.str("current_password")) {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	u.Hash = hash(b.str("new_password"))
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password changed successfully"})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	if b.str("email") == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var u *user
	for _, candidate := range s.data.users {
		if candidate.Email == b.str("email") {
			u = candidate
		}
	}
	if u == nil {
		writeJSON(w, http.StatusOK, map[string]any{"message": "If the email exists, a reset token has been generated"})
		return
	}

	token := resetToken()
	s.data.resetTokens[token] = u.ID
	s.metrics.ResetTokens.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Password reset token generated",
		"reset_token": token,
	})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	if b.str("token") == "" || b.str("new_password") == "" {
		writeError(w, http.StatusBadRequest, "Token and new password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.data.resetTokens[b.str("token")]
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}
	u := s.data.users[id]
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	u.Hash = hash(b.str("new_password"))
	delete(s.data.resetTokens, b.str("token"))
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successfully"})
}

// Users

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("per_page"))
	if err != nil || perPage < 1 {
		perPage = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.data.sortedUsers()
	items := []map[string]any{}
	for i := (page - 1) * perPage; i < len(all) && i < page*perPage; i++ {
		items = append(items, s.data.userJSON(all[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":        items,
		"total":        len(all),
		"pages":        int(math.Ceil(float64(len(all)) / float64(perPage))),
		"current_page": page,
	})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	for _, f := range []string{"username", "email", "password"} {
		if b.str(f) == "" {
			writeError(w, http.StatusBadRequest, f+" is required")
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.usernameTaken(b.str("username"), 0) {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if s.data.emailTaken(b.str("email"), 0) {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}
	u := s.data.addUser(b.str("username"), b.str("email"), b.str("password"),
		b.str("first_name"), b.str("last_name"), b.boolean("is_active", true), b.ints("role_ids")...)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"user":    s.data.userJSON(u),
	})
}

func (s *Server) lookupUser(w http.ResponseWriter, r *http.Request) *user {
	u := s.data.users[pathID(r, "id")]
	if u == nil {
		writeError(w, http.StatusNotFound, "Not Found")
	}
	return u
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.lookupUser(w, r); u != nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": s.data.userJSON(u)})
	}
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.lookupUser(w, r)
	if u == nil {
		return
	}
	if b.has("username") && s.data.usernameTaken(b.str("username"), u.ID) {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	if b.has("email") && s.data.emailTaken(b.str("email"), u.ID) {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}
	if b.has("username") {
		u.Username = b.str("username")
	}
	if b.has("email") {
		u.Email = b.str("email")
	}
	if b.has("first_name") {
		u.FirstName = b.str("first_name")
	}
	if b.has("last_name") {
		u.LastName = b.str("last_name")
	}
	if b.has("is_active") {
		u.Active = b.boolean("is_active", u.Active)
	}
	if pw := b.str("password"); pw != "" {
		u.Hash = hash(pw)
	}
	if b.has("role_ids") {
		u.Roles = s.data.existingRoles(b.ints("role_ids"))
	}
	u.UpdatedAt = time.Now().UTC()

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated successfully",
		"user":    s.data.userJSON(u),
	})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identityFrom(r.Context()).userID == pathID(r, "id") {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}
	u := s.lookupUser(w, r)
	if u == nil {
		return
	}
	delete(s.data.users, u.ID)
	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.lookupUser(w, r)
	if u == nil {
		return
	}
	if b.integer("role_id") == 0 {
		writeError(w, http.StatusBadRequest, "role_id is required")
		return
	}
	ro := s.data.roles[b.integer("role_id")]
	if ro == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if slices.Contains(u.Roles, ro.ID) {
		writeError(w, http.StatusBadRequest, "User already has this role")
		return
	}
	u.Roles = append(u.Roles, ro.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Role %s assigned to user %s", ro.Name, u.Username),
		"user":    s.data.userJSON(u),
	})
}

func (s *Server) removeRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.lookupUser(w, r)
	if u == nil {
		return
	}
	ro := s.data.roles[pathID(r, "roleID")]
	if ro == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	i := slices.Index(u.Roles, ro.ID)
	if i < 0 {
		writeError(w, http.StatusBadRequest, "User does not have this role")
		return
	}
	u.Roles = slices.Delete(u.Roles, i, i+1)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Role %s removed from user %s", ro.Name, u.Username),
		"user":    s.data.userJSON(u),
	})
}

// Roles

func (s *Server) listRoles(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := []map[string]any{}
	for _, ro := range s.data.sortedRoles() {
		roles = append(roles, s.data.roleJSON(ro))
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (s *Server) lookupRole(w http.ResponseWriter, r *http.Request) *role {
	ro := s.data.roles[pathID(r, "id")]
	if ro == nil {
		writeError(w, http.StatusNotFound, "Not Found")
	}
	return ro
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	if b.str("name") == "" {
		writeError(w, http.StatusBadRequest, "Role name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.roleByName(b.str("name")) != nil {
		writeError(w, http.StatusBadRequest, "Role already exists")
		return
	}
	ro := s.data.addRole(b.str("name"), b.str("description"), b.ints("permission_ids"))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Role created successfully",
		"role":    s.data.roleJSON(ro),
	})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ro := s.lookupRole(w, r); ro != nil {
		writeJSON(w, http.StatusOK, map[string]any{"role": s.data.roleJSON(ro)})
	}
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	ro := s.lookupRole(w, r)
	if ro == nil {
		return
	}
	if b.has("name") {
		if other := s.data.roleByName(b.str("name")); other != nil && other.ID != ro.ID {
			writeError(w, http.StatusBadRequest, "Role name already exists")
			return
		}
		ro.Name = b.str("name")
	}
	if b.has("description") {
		ro.Description = b.str("description")
	}
	if b.has("permission_ids") {
		ro.Permissions = s.data.existingPermissions(b.ints("permission_ids"))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Role updated successfully",
		"role":    s.data.roleJSON(ro),
	})
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ro := s.lookupRole(w, r)
	if ro == nil {
		return
	}
	if n := s.data.usersWithRole(ro.ID); n > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Cannot delete role. It is assigned to %d user(s)", n))
		return
	}
	delete(s.data.roles, ro.ID)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Role deleted successfully"})
}

func (s *Server) assignPermission(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	ro := s.lookupRole(w, r)
	if ro == nil {
		return
	}
	if b.integer("permission_id") == 0 {
		writeError(w, http.StatusBadRequest, "permission_id is required")
		return
	}
	p := s.data.permissions[b.integer("permission_id")]
	if p == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if slices.Contains(ro.Permissions, p.ID) {
		writeError(w, http.StatusBadRequest, "Role already has this permission")
		return
	}
	ro.Permissions = append(ro.Permissions, p.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Permission %s assigned to role %s", p.Name, ro.Name),
		"role":    s.data.roleJSON(ro),
	})
}

func (s *Server) removePermission(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ro := s.lookupRole(w, r)
	if ro == nil {
		return
	}
	p := s.data.permissions[pathID(r, "permissionID")]
	if p == nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	i := slices.Index(ro.Permissions, p.ID)
	if i < 0 {
		writeError(w, http.StatusBadRequest, "Role does not have this permission")
		return
	}
	ro.Permissions = slices.Delete(ro.Permissions, i, i+1)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Permission %s removed from role %s", p.Name, ro.Name),
		"role":    s.data.roleJSON(ro),
	})
}

// Permissions

func (s *Server) listPermissions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms := []map[string]any{}
	for _, p := range s.data.sortedPermissions() {
		perms = append(perms, permissionJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (s *Server) lookupPermission(w http.ResponseWriter, r *http.Request) *permission {
	p := s.data.permissions[pathID(r, "id")]
	if p == nil {
		writeError(w, http.StatusNotFound, "Not Found")
	}
	return p
}

func (s *Server) createPermission(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	if b.str("name") == "" {
		writeError(w, http.StatusBadRequest, "Permission name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.permissionByName(b.str("name")) != nil {
		writeError(w, http.StatusBadRequest, "Permission already exists")
		return
	}
	p := s.data.addPermission(b.str("name"), b.str("description"))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Permission created successfully",
		"permission": permissionJSON(p),
	})
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.lookupPermission(w, r); p != nil {
		writeJSON(w, http.StatusOK, map[string]any{"permission": permissionJSON(p)})
	}
}

func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	b := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupPermission(w, r)
	if p == nil {
		return
	}
	if b.has("name") {
		if other := s.data.permissionByName(b.str("name")); other != nil && other.ID != p.ID {
			writeError(w, http.StatusBadRequest, "Permission name already exists")
			return
		}
		p.Name = b.str("name")
	}
	if b.has("description") {
		p.Description = b.str("description")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Permission updated successfully",
		"permission": permissionJSON(p),
	})
}

func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.lookupPermission(w, r)
	if p == nil {
		return
	}
	if n := s.data.rolesWithPermission(p.ID); n > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Cannot delete permission. It is assigned to %d role(s)", n))
		return
	}
	delete(s.data.permissions, p.ID)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Permission deleted successfully"})
}
