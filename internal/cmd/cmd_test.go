package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hradmin/internal/audit"
	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/credstore"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/exitcode"
	"github.com/felixgeelhaar/hradmin/internal/hrtest"
)

type harness struct {
	t   *testing.T
	srv *hrtest.Server
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := hrtest.NewServer()
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	t.Setenv("HRADMIN_CONFIG_DIR", dir)
	return &harness{t: t, srv: srv, dir: dir}
}

// run executes one invocation against the fake backend, feeding stdin.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	a := &App{}
	root := newRootCmd(a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-url", h.srv.URL(), "--no-prompt", "--no-color"}, args...))

	ctx := context.Background()
	err := root.ExecuteContext(ctx)
	a.close(ctx, err)
	return out.String(), err
}

func (h *harness) login(username, password string) {
	h.t.Helper()
	_, err := h.run(password+"\n", "auth", "login", "-u", username, "--password-stdin")
	require.NoError(h.t, err)
}

func (h *harness) credentialFile() string {
	return filepath.Join(h.dir, credstore.FileName)
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestLoginThenStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(hrtest.AdminPassword+"\n", "auth", "login", "-u", hrtest.AdminUser, "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin (Admin)")
	assert.FileExists(t, h.credentialFile())

	out, err = h.run("", "auth", "status", "-o", "json")
	require.NoError(t, err)
	st := decode(t, out)
	assert.Equal(t, "authenticated", st["status"])
	assert.Equal(t, "admin", st["user"])
	assert.Equal(t, []any{"Admin"}, st["roles"])
	assert.Contains(t, st["permissions"], "permission_delete")
	assert.NotEmpty(t, st["expires_at"])

	out, err = h.run(hrtest.AdminPassword+"\n", "auth", "login", "-u", hrtest.AdminUser, "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Already signed in as admin")
	assert.Equal(t, 1, h.srv.LoginCalls())
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("wrong\n", "auth", "login", "-u", hrtest.AdminUser, "--password-stdin")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCredentials))
	assert.Contains(t, err.Error(), "Invalid credentials")
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(err))
	assert.NoFileExists(t, h.credentialFile())
}

func TestLoginNeedsInputWithoutPrompt(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "auth", "login")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputRequired))
	assert.Equal(t, exitcode.UsageError, exitcode.DetermineExitCode(err))

	_, err = h.run("", "auth", "login", "-u", "admin")
	assert.Contains(t, err.Error(), "--password is required")
	assert.Zero(t, h.srv.LoginCalls())
}

func TestStatusSignedOut(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "unauthenticated")
	assert.Empty(t, h.srv.RequestsTo(http.MethodGet, "/api/auth/profile"), "no credential means no validation request")
}

func TestRejectedCredentialIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.HRUser, hrtest.HRPassword)

	h.srv.Fail(http.MethodGet, "/api/auth/profile", http.StatusUnauthorized, "Token has expired")
	_, err := h.run("", "profile", "show")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))
	assert.NoFileExists(t, h.credentialFile())
	assert.Len(t, h.srv.RequestsTo(http.MethodPost, "/api/auth/logout"), 1)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.AdminUser, hrtest.AdminPassword)

	out, err := h.run("", "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")
	assert.NoFileExists(t, h.credentialFile())

	logouts := h.srv.RequestsTo(http.MethodPost, "/api/auth/logout")
	require.Len(t, logouts, 1)
	assert.True(t, h.srv.Revoked(strings.TrimPrefix(logouts[0].Authorization, "Bearer ")))

	out, err = h.run("", "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
	assert.Len(t, h.srv.RequestsTo(http.MethodPost, "/api/auth/logout"), 1)
}

func TestPermissionGate(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.EmployeeUser, hrtest.EmployeePass)

	_, err := h.run("", "roles", "list")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePermissionDenied))
	assert.Equal(t, exitcode.PermissionDenied, exitcode.DetermineExitCode(err))
	assert.Empty(t, h.srv.RequestsTo(http.MethodGet, "/api/roles"), "denied before any request")

	out, err := h.run("", "users", "list", "--per-page", "2", "-o", "json")
	require.NoError(t, err)
	page := decode(t, out)
	assert.EqualValues(t, 3, page["total"])
	assert.EqualValues(t, 2, page["pages"])
	assert.Len(t, page["users"], 2)
}

func TestNotSignedIn(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "users", "list")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))
	assert.Equal(t, exitcode.AuthError, exitcode.DetermineExitCode(err))
}

func TestUserAdministration(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.AdminUser, hrtest.AdminPassword)

	out, err := h.run("", "users", "create", "-u", "jane", "--email", "jane@hrms.com", "-p", "secret1",
		"--first-name", "Jane", "--role-id", "3", "-o", "json")
	require.NoError(t, err)
	u := decode(t, out)
	assert.Equal(t, "jane", u["username"])
	id := int(u["id"].(float64))
	assert.Equal(t, 4, id)

	out, err = h.run("", "users", "assign-role", "4", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Employee, HR")

	_, err = h.run("", "users", "assign-role", "4", "2")
	assert.Contains(t, err.Error(), "User already has this role")

	out, err = h.run("", "users", "update", "4", "--active=false", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, out)["is_active"])

	out, err = h.run("", "users", "get", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "jane@hrms.com")

	_, err = h.run("", "users", "delete", "4")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputRequired), "no terminal means --yes is needed")

	out, err = h.run("", "users", "delete", "4", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "User 4 deleted.")

	_, err = h.run("", "users", "get", "abc")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputInvalid))

	_, err = h.run("", "users", "delete", "1", "-y")
	assert.Contains(t, err.Error(), "Cannot delete your own account")
}

func TestRolesAndPermissions(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.AdminUser, hrtest.AdminPassword)

	out, err := h.run("", "permissions", "create", "--name", "report_read", "--description", "Read reports", "-o", "json")
	require.NoError(t, err)
	permID := int(decode(t, out)["id"].(float64))

	out, err = h.run("", "roles", "create", "--name", "Auditor", "-o", "json")
	require.NoError(t, err)
	roleID := int(decode(t, out)["id"].(float64))

	out, err = h.run("", "roles", "grant", strconv.Itoa(roleID), strconv.Itoa(permID))
	require.NoError(t, err)
	assert.Contains(t, out, "report_read")

	_, err = h.run("", "permissions", "delete", strconv.Itoa(permID), "--yes")
	assert.Contains(t, err.Error(), "It is assigned to 1 role(s)")

	out, err = h.run("", "roles", "revoke", strconv.Itoa(roleID), strconv.Itoa(permID))
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")

	out, err = h.run("", "permissions", "update", strconv.Itoa(permID), "--description", "Reports", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "description: Reports")

	out, err = h.run("", "roles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Auditor")

	_, err = h.run("", "roles", "delete", strconv.Itoa(roleID), "--yes")
	require.NoError(t, err)
	_, err = h.run("", "permissions", "delete", strconv.Itoa(permID), "--yes")
	require.NoError(t, err)

	out, err = h.run("", "permissions", "list", "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "report_read")
}

func TestRegisterAndResetPassword(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("secret1\n", "auth", "register", "-u", "newbie", "--email", "newbie@hrms.com", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "User registered successfully")
	assert.NoFileExists(t, h.credentialFile(), "registering does not sign in")

	_, err = h.run("123\n", "auth", "register", "-u", "short", "--email", "short@hrms.com", "--password-stdin")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputInvalid))

	out, err = h.run("", "auth", "forgot-password", "--email", "newbie@hrms.com", "-o", "json")
	require.NoError(t, err)
	token, _ := decode(t, out)["reset_token"].(string)
	require.Len(t, token, 32)

	_, err = h.run("", "auth", "reset-password", "--token", token, "-p", "123")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputInvalid))

	out, err = h.run("changed1\n", "auth", "reset-password", "--token", token, "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Password reset successfully")

	_, err = h.run("changed1\n", "auth", "reset-password", "--token", token, "--password-stdin")
	assert.True(t, errors.HasCode(err, errors.ErrCodeResetFlow))
	assert.Contains(t, err.Error(), "Invalid or expired token")

	h.login("newbie", "changed1")
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "auth", "forgot-password", "--email", "nobody@hrms.com")
	require.NoError(t, err)
	assert.Contains(t, out, "If the email exists")
	assert.NotContains(t, out, "Reset token")

	_, err = h.run("", "auth", "forgot-password")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputInvalid))
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.HRUser, hrtest.HRPassword)

	_, err := h.run("nope\nnewpass1\n", "auth", "change-password", "--stdin")
	assert.Contains(t, err.Error(), "Current password is incorrect")

	out, err := h.run(hrtest.HRPassword+"\nnewpass1\n", "auth", "change-password", "--stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Password changed successfully")

	_, err = h.run("", "profile", "show")
	assert.NoError(t, err, "the session survives a password change")
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.EmployeeUser, hrtest.EmployeePass)

	out, err := h.run("", "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "John Doe")

	out, err = h.run("", "profile", "update", "--first-name", "Johnny", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "Johnny", decode(t, out)["first_name"])

	_, err = h.run("", "profile", "update")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputRequired))

	_, err = h.run("", "profile", "update", "--email", "admin@hrms.com")
	assert.Contains(t, err.Error(), "Email already exists")
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "config.yaml"), strings.TrimSpace(out))

	_, err = h.run("", "config", "init")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(h.dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "environment: development")

	_, err = h.run("", "config", "init")
	assert.Error(t, err)
	_, err = h.run("", "config", "init", "--force")
	assert.NoError(t, err)

	out, err = h.run("", "config", "view", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, h.srv.URL(), decode(t, out)["api_url"])
}

func TestInvalidConfigIsAConfigError(t *testing.T) {
	h := newHarness(t)
	t.Setenv("HRADMIN_ENV", "staging")

	_, err := h.run("", "auth", "status")
	assert.Equal(t, exitcode.ConfigError, exitcode.DetermineExitCode(err))
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "hradmin "))

	out, err = h.run("", "version", "-o", "json")
	require.NoError(t, err)
	assert.NotEmpty(t, decode(t, out)["go_version"])
}

func TestDoctor(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "doctor", "-o", "json")
	require.NoError(t, err)
	report := decode(t, out)
	assert.Equal(t, "degraded", report["status"], "not signed in yet")

	h.login(hrtest.AdminUser, hrtest.AdminPassword)
	out, err = h.run("", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as admin")
	assert.Contains(t, out, "Overall: healthy")

	t.Setenv("HRADMIN_ENV", "staging")
	out, err = h.run("", "doctor")
	require.Error(t, err, "an invalid configuration is reported, not fatal")
	assert.Contains(t, out, "config")
	assert.Contains(t, out, "Overall: unhealthy")
}

func TestDoctorBackendDown(t *testing.T) {
	h := newHarness(t)
	h.srv.Close()

	out, err := h.run("", "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "backend unreachable")
}

func TestAuthHistory(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "auth", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No audit events recorded.")

	_, err = h.run("wrong\n", "auth", "login", "-u", hrtest.EmployeeUser, "--password-stdin")
	require.Error(t, err)
	h.login(hrtest.EmployeeUser, hrtest.EmployeePass)
	_, err = h.run("", "roles", "list")
	require.Error(t, err)
	_, err = h.run("", "auth", "logout")
	require.NoError(t, err)

	out, err = h.run("", "auth", "history", "-o", "json")
	require.NoError(t, err)
	var events []audit.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events), out)

	var kinds []audit.EventType
	for _, e := range events {
		kinds = append(kinds, e.Type)
		assert.Equal(t, hrtest.EmployeeUser, e.User, e.Type)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventLoginFailed,
		audit.EventLogin,
		audit.EventSessionRestored,
		audit.EventAccessDenied,
		audit.EventSessionRestored,
		audit.EventLogout,
	}, kinds)
	assert.Equal(t, authz.RoleRead, events[3].Data["permission"])

	out, err = h.run("", "auth", "history", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "logout")
	assert.NotContains(t, out, "login_failed")
}

func TestAuthHistoryDisabled(t *testing.T) {
	h := newHarness(t)
	t.Setenv("HRADMIN_AUDIT_ENABLED", "false")

	h.login(hrtest.AdminUser, hrtest.AdminPassword)
	assert.NoFileExists(t, filepath.Join(h.dir, "audit", "audit.jsonl"))

	_, err := h.run("", "auth", "history")
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestPickersNeedIDsWithoutPrompt(t *testing.T) {
	h := newHarness(t)
	h.login(hrtest.AdminUser, hrtest.AdminPassword)

	_, err := h.run("", "users", "assign-role", "1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputRequired))
	assert.Contains(t, err.Error(), "<role-id>")

	_, err = h.run("", "roles", "grant", "1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInputRequired))
	assert.Contains(t, err.Error(), "<permission-id>")
	assert.Empty(t, h.srv.RequestsTo(http.MethodGet, "/api/roles"))
}
