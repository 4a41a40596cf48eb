package authz

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/log"
)

type staticChecker struct {
	permissions map[string]bool
	roles       map[string]bool
}

func (c staticChecker) HasPermission(name string) bool { return c.permissions[name] }
func (c staticChecker) HasRole(name string) bool       { return c.roles[name] }

func checkerFor(role string) staticChecker {
	c := staticChecker{permissions: map[string]bool{}, roles: map[string]bool{}}
	if role == "" {
		return c
	}
	c.roles[role] = true
	for _, p := range DefaultGrants()[role] {
		c.permissions[p] = true
	}
	return c
}

func TestGateRequire(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(checkerFor(RoleHR), nil)

	assert.NoError(t, gate.Require(ctx, UserWrite))
	assert.True(t, gate.Allowed(RoleRead))

	err := gate.Require(ctx, UserDelete)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePermissionDenied))
	assert.Contains(t, err.Error(), "user_delete")
}

func TestGateRequireAnyAndRole(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(checkerFor(RoleEmployee), nil)

	assert.NoError(t, gate.RequireAny(ctx, RoleRead, UserRead))
	assert.Error(t, gate.RequireAny(ctx, RoleRead, RoleWrite))

	assert.NoError(t, gate.RequireRole(ctx, RoleEmployee))
	err := gate.RequireRole(ctx, RoleAdmin)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRoleRequired))
}

func TestGateLogsDenials(t *testing.T) {
	var buf bytes.Buffer
	cfg := log.DefaultConfig()
	cfg.Level = log.LevelInfo
	cfg.Writer = &buf

	gate := NewGate(checkerFor(""), log.New(cfg))
	_ = gate.Require(context.Background(), RoleDelete)

	assert.Contains(t, buf.String(), "authorization denied")
	assert.Contains(t, buf.String(), "permission=role_delete")
	assert.Contains(t, buf.String(), "component=authz")
}

func TestUnauthenticatedSeesNothingGated(t *testing.T) {
	c := checkerFor("")

	visible := Visible(c, Navigation())
	keys := make([]string, 0, len(visible))
	for _, item := range visible {
		keys = append(keys, item.Key)
	}
	assert.Equal(t, []string{"dashboard", "profile"}, keys)
	assert.Equal(t, Actions{}, ActionsFor(c, Users))
}

func TestNavigationPerRole(t *testing.T) {
	tests := []struct {
		role string
		want []string
	}{
		{RoleAdmin, []string{"dashboard", "users", "roles", "permissions", "profile"}},
		{RoleHR, []string{"dashboard", "users", "roles", "profile"}},
		{RoleEmployee, []string{"dashboard", "users", "profile"}},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			var keys []string
			for _, item := range Visible(checkerFor(tt.role), Navigation()) {
				keys = append(keys, item.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestActionsFor(t *testing.T) {
	assert.Equal(t, Actions{CanView: true, CanCreate: true, CanEdit: true, CanDelete: true}, ActionsFor(checkerFor(RoleAdmin), Roles))
	assert.Equal(t, Actions{CanView: true, CanCreate: true, CanEdit: true}, ActionsFor(checkerFor(RoleHR), Users))
	assert.Equal(t, Actions{CanView: true}, ActionsFor(checkerFor(RoleHR), Roles))
	assert.Equal(t, Actions{}, ActionsFor(checkerFor(RoleEmployee), Permissions))
}

func TestCatalogue(t *testing.T) {
	assert.Len(t, AllPermissions(), 9)
	for _, p := range AllPermissions() {
		assert.NotEmpty(t, Describe(p), p)
	}
	assert.Empty(t, Describe("unknown"))
}
