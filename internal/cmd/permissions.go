package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
)

func newPermissionsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permissions",
		Aliases: []string{"permission", "perms"},
		Short:   "Manage permissions",
	}

	var name, description string
	var yes bool
	input := func(cmd *cobra.Command) hrapi.PermissionInput {
		var in hrapi.PermissionInput
		if cmd.Flags().Changed("name") {
			in.Name = &name
		}
		if cmd.Flags().Changed("description") {
			in.Description = &description
		}
		return in
	}
	withFields := func(c *cobra.Command) *cobra.Command {
		c.Flags().StringVar(&name, "name", "", "permission name, for example report_read")
		c.Flags().StringVar(&description, "description", "", "what the permission allows")
		return c
	}

	del := &cobra.Command{
		Use:   "delete <permission-id>",
		Short: "Delete a permission that no role grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("permission id", args[0])
			if err != nil {
				return err
			}
			if err := a.authorized(ctx, authz.PermissionDelete); err != nil {
				return err
			}
			ok, err := a.confirm(yes, fmt.Sprintf("Delete permission %d?", id))
			if err != nil || !ok {
				return err
			}
			if err := a.Client.DeletePermission(ctx, id); err != nil {
				return a.apiError(err, "delete permission")
			}
			return a.print(message{Message: fmt.Sprintf("Permission %d deleted.", id)})
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List permissions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if err := a.authorized(ctx, authz.PermissionRead); err != nil {
					return err
				}
				perms, err := a.Client.ListPermissions(ctx)
				if err != nil {
					return a.apiError(err, "list permissions")
				}
				return a.print(permissionList(perms))
			},
		},
		&cobra.Command{
			Use:   "get <permission-id>",
			Short: "Show a permission",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := parseID("permission id", args[0])
				if err != nil {
					return err
				}
				if err := a.authorized(ctx, authz.PermissionRead); err != nil {
					return err
				}
				p, err := a.Client.GetPermission(ctx, id)
				if err != nil {
					return a.apiError(err, "get permission")
				}
				return a.print(permissionView{*p})
			},
		},
		withFields(&cobra.Command{
			Use:   "create",
			Short: "Create a permission",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				if name == "" {
					return errors.NewInputRequiredError("--name")
				}
				if err := a.authorized(ctx, authz.PermissionWrite); err != nil {
					return err
				}
				p, err := a.Client.CreatePermission(ctx, input(cmd))
				if err != nil {
					return a.apiError(err, "create permission")
				}
				return a.print(permissionView{*p})
			},
		}),
		withFields(&cobra.Command{
			Use:   "update <permission-id>",
			Short: "Rename or describe a permission",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := parseID("permission id", args[0])
				if err != nil {
					return err
				}
				in := input(cmd)
				if in.Name == nil && in.Description == nil {
					return errors.NewInputRequiredError("--name or --description")
				}
				if err := a.authorized(ctx, authz.PermissionWrite); err != nil {
					return err
				}
				p, err := a.Client.UpdatePermission(ctx, id, in)
				if err != nil {
					return a.apiError(err, "update permission")
				}
				return a.print(permissionView{*p})
			},
		}),
		del,
	)
	return cmd
}
