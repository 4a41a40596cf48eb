package authz

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/log"
)

// Checker answers permission and role questions about the current identity.
// *session.Manager satisfies it.
type Checker interface {
	HasPermission(name string) bool
	HasRole(name string) bool
}

// Gate turns predicate checks into deny-with-message errors for views.
// Denials are logged at info level for auditing.
type Gate struct {
	checker Checker
	logger  *log.Logger
}

// NewGate returns a Gate over checker.
func NewGate(checker Checker, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Nop()
	}
	return &Gate{checker: checker, logger: logger.WithComponent("authz")}
}

// Allowed reports whether permission is held.
func (g *Gate) Allowed(permission string) bool {
	return g.checker.HasPermission(permission)
}

// Require returns nil if permission is held, else an AUTHZ-001 error.
func (g *Gate) Require(ctx context.Context, permission string) error {
	if g.checker.HasPermission(permission) {
		return nil
	}
	g.logger.Slog().InfoContext(ctx, "authorization denied", "permission", permission)
	return errors.NewPermissionDeniedError(permission)
}

// RequireAny passes if at least one of permissions is held.
func (g *Gate) RequireAny(ctx context.Context, permissions ...string) error {
	for _, p := range permissions {
		if g.checker.HasPermission(p) {
			return nil
		}
	}
	g.logger.Slog().InfoContext(ctx, "authorization denied", "any_of", permissions)
	return errors.NewPermissionDeniedError(strings.Join(permissions, " or "))
}

// RequireRole returns nil if role is held, else an AUTHZ-002 error.
func (g *Gate) RequireRole(ctx context.Context, role string) error {
	if g.checker.HasRole(role) {
		return nil
	}
	g.logger.Slog().InfoContext(ctx, "authorization denied", "role", role)
	return errors.NewRoleRequiredError(role)
}

// Actions says which mutations a view may offer for a resource.
type Actions struct {
	CanView   bool
	CanCreate bool
	CanEdit   bool
	CanDelete bool
}

// ActionsFor derives the enabled actions on r for the current identity.
func ActionsFor(c Checker, r Resource) Actions {
	return Actions{
		CanView:   c.HasPermission(r.Read),
		CanCreate: c.HasPermission(r.Write),
		CanEdit:   c.HasPermission(r.Write),
		CanDelete: c.HasPermission(r.Delete),
	}
}
