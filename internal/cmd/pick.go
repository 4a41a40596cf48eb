package cmd

import (
	"context"
	"strconv"

	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/tui"
)

// withPicked appends the id chosen by pick when the final positional
// argument was left out.
func withPicked(ctx context.Context, args []string, want int, pick func(context.Context) (int, error)) ([]string, error) {
	if len(args) == want {
		return args, nil
	}
	id, err := pick(ctx)
	if err != nil {
		return nil, err
	}
	return append(args, strconv.Itoa(id)), nil
}

func (a *App) pickRole(ctx context.Context) (int, error) {
	if !a.interactive() {
		return 0, errors.NewInputRequiredError("<role-id>")
	}
	if err := a.authorized(ctx, authz.RoleRead); err != nil {
		return 0, err
	}
	roles, err := a.Client.ListRoles(ctx)
	if err != nil {
		return 0, a.apiError(err, "list roles")
	}
	opts := make([]tui.Option, 0, len(roles))
	for _, r := range roles {
		opts = append(opts, tui.Option{Label: label(r.Name, r.Description), Value: r.ID})
	}
	return tui.PromptForSelect("Role", opts)
}

func (a *App) pickPermission(ctx context.Context) (int, error) {
	if !a.interactive() {
		return 0, errors.NewInputRequiredError("<permission-id>")
	}
	if err := a.authorized(ctx, authz.PermissionRead); err != nil {
		return 0, err
	}
	perms, err := a.Client.ListPermissions(ctx)
	if err != nil {
		return 0, a.apiError(err, "list permissions")
	}
	opts := make([]tui.Option, 0, len(perms))
	for _, p := range perms {
		opts = append(opts, tui.Option{Label: label(p.Name, p.Description), Value: p.ID})
	}
	return tui.PromptForSelect("Permission", opts)
}

func label(name, description string) string {
	if description == "" {
		return name
	}
	return name + " - " + description
}
