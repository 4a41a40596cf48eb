package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
)

func newRolesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "roles",
		Aliases: []string{"role"},
		Short:   "Manage roles and the permissions they grant",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List roles",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if err := a.authorized(ctx, authz.RoleRead); err != nil {
					return err
				}
				roles, err := a.Client.ListRoles(ctx)
				if err != nil {
					return a.apiError(err, "list roles")
				}
				return a.print(roleList(roles))
			},
		},
		&cobra.Command{
			Use:   "get <role-id>",
			Short: "Show a role and its permissions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := parseID("role id", args[0])
				if err != nil {
					return err
				}
				if err := a.authorized(ctx, authz.RoleRead); err != nil {
					return err
				}
				r, err := a.Client.GetRole(ctx, id)
				if err != nil {
					return a.apiError(err, "get role")
				}
				return a.print(roleView{*r})
			},
		},
		newRolesCreateCmd(a),
		newRolesUpdateCmd(a),
		newRolesDeleteCmd(a),
		&cobra.Command{
			Use:   "grant <role-id> [permission-id]",
			Short: "Add a permission to a role, picking it from a list if no id is given",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				args, err := withPicked(cmd.Context(), args, 2, a.pickPermission)
				if err != nil {
					return err
				}
				return a.rolePermissionChange(cmd, args, "grant permission", a.Client.AssignRolePermission)
			},
		},
		&cobra.Command{
			Use:   "revoke <role-id> <permission-id>",
			Short: "Remove a permission from a role",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.rolePermissionChange(cmd, args, "revoke permission", a.Client.RemoveRolePermission)
			},
		},
	)
	return cmd
}

type roleFlags struct {
	name, description string
	permissionIDs     []int
}

func (r *roleFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.name, "name", "", "role name")
	f.StringVar(&r.description, "description", "", "role description")
	f.IntSliceVar(&r.permissionIDs, "permission-id", nil, "permission id to grant (repeatable)")
}

func (r *roleFlags) input(cmd *cobra.Command) hrapi.RoleInput {
	f := cmd.Flags()
	var in hrapi.RoleInput
	if f.Changed("name") {
		in.Name = &r.name
	}
	if f.Changed("description") {
		in.Description = &r.description
	}
	if f.Changed("permission-id") {
		in.PermissionIDs = r.permissionIDs
	}
	return in
}

func newRolesCreateCmd(a *App) *cobra.Command {
	var rf roleFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if rf.name == "" {
				return errors.NewInputRequiredError("--name")
			}
			if err := a.authorized(ctx, authz.RoleWrite); err != nil {
				return err
			}
			r, err := a.Client.CreateRole(ctx, rf.input(cmd))
			if err != nil {
				return a.apiError(err, "create role")
			}
			return a.print(roleView{*r})
		},
	}
	rf.bind(cmd)
	return cmd
}

func newRolesUpdateCmd(a *App) *cobra.Command {
	var rf roleFlags
	cmd := &cobra.Command{
		Use:   "update <role-id>",
		Short: "Change a role; --permission-id replaces the permission set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("role id", args[0])
			if err != nil {
				return err
			}
			in := rf.input(cmd)
			if in.Name == nil && in.Description == nil && in.PermissionIDs == nil {
				return errors.NewInputRequiredError("at least one field to change")
			}
			if err := a.authorized(ctx, authz.RoleWrite); err != nil {
				return err
			}
			r, err := a.Client.UpdateRole(ctx, id, in)
			if err != nil {
				return a.apiError(err, "update role")
			}
			return a.print(roleView{*r})
		},
	}
	rf.bind(cmd)
	return cmd
}

func newRolesDeleteCmd(a *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <role-id>",
		Short: "Delete a role that no user holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("role id", args[0])
			if err != nil {
				return err
			}
			if err := a.authorized(ctx, authz.RoleDelete); err != nil {
				return err
			}
			ok, err := a.confirm(yes, fmt.Sprintf("Delete role %d?", id))
			if err != nil || !ok {
				return err
			}
			if err := a.Client.DeleteRole(ctx, id); err != nil {
				return a.apiError(err, "delete role")
			}
			return a.print(message{Message: fmt.Sprintf("Role %d deleted.", id)})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *App) rolePermissionChange(cmd *cobra.Command, args []string, action string, fn func(ctx context.Context, roleID, permissionID int) (*hrapi.Role, error)) error {
	ctx := cmd.Context()
	roleID, err := parseID("role id", args[0])
	if err != nil {
		return err
	}
	permissionID, err := parseID("permission id", args[1])
	if err != nil {
		return err
	}
	if err := a.authorized(ctx, authz.RoleWrite); err != nil {
		return err
	}
	r, err := fn(ctx, roleID, permissionID)
	if err != nil {
		return a.apiError(err, action)
	}
	return a.print(roleView{*r})
}
