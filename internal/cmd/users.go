package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/authz"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/tui"
)

func newUsersCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage user accounts",
	}
	cmd.AddCommand(
		newUsersListCmd(a),
		newUsersGetCmd(a),
		newUsersCreateCmd(a),
		newUsersUpdateCmd(a),
		newUsersDeleteCmd(a),
		newUsersAssignRoleCmd(a),
		newUsersRemoveRoleCmd(a),
	)
	return cmd
}

func newUsersListCmd(a *App) *cobra.Command {
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users one page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.authorized(ctx, authz.UserRead); err != nil {
				return err
			}
			p, err := a.Client.ListUsers(ctx, page, perPage)
			if err != nil {
				return a.apiError(err, "list users")
			}
			return a.print(userList{*p})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 10, "users per page")
	return cmd
}

func newUsersGetCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("user id", args[0])
			if err != nil {
				return err
			}
			if err := a.authorized(ctx, authz.UserRead); err != nil {
				return err
			}
			u, err := a.Client.GetUser(ctx, id)
			if err != nil {
				return a.apiError(err, "get user")
			}
			return a.print(userView{*u})
		},
	}
}

// userFlags binds the create/update flags of a user.
type userFlags struct {
	username, email, password string
	firstName, lastName       string
	active                    bool
	roleIDs                   []int
}

func (u *userFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&u.username, "username", "u", "", "username")
	f.StringVar(&u.email, "email", "", "email address")
	f.StringVarP(&u.password, "password", "p", "", "password")
	f.StringVar(&u.firstName, "first-name", "", "first name")
	f.StringVar(&u.lastName, "last-name", "", "last name")
	f.BoolVar(&u.active, "active", true, "whether the account may sign in")
	f.IntSliceVar(&u.roleIDs, "role-id", nil, "role id to grant (repeatable)")
}

// input builds a request holding only the flags that were set.
func (u *userFlags) input(cmd *cobra.Command) hrapi.UserInput {
	f := cmd.Flags()
	var in hrapi.UserInput
	if f.Changed("username") {
		in.Username = &u.username
	}
	if f.Changed("email") {
		in.Email = &u.email
	}
	if f.Changed("password") {
		in.Password = &u.password
	}
	if f.Changed("first-name") {
		in.FirstName = &u.firstName
	}
	if f.Changed("last-name") {
		in.LastName = &u.lastName
	}
	if f.Changed("active") {
		in.IsActive = &u.active
	}
	if f.Changed("role-id") {
		in.RoleIDs = u.roleIDs
	}
	return in
}

func newUsersCreateCmd(a *App) *cobra.Command {
	var uf userFlags
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a user",
		Example: `  hradmin users create -u jane --email jane@example.com -p s3cret! --role-id 3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if missing := firstMissing(
				[2]string{"--username", uf.username},
				[2]string{"--email", uf.email},
				[2]string{"--password", uf.password},
			); missing != "" {
				return errors.NewInputRequiredError(missing)
			}
			if err := a.authorized(ctx, authz.UserWrite); err != nil {
				return err
			}
			u, err := a.Client.CreateUser(ctx, uf.input(cmd))
			if err != nil {
				return a.apiError(err, "create user")
			}
			return a.print(userView{*u})
		},
	}
	uf.bind(cmd)
	return cmd
}

func newUsersUpdateCmd(a *App) *cobra.Command {
	var uf userFlags
	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Change fields of a user; --role-id replaces the role set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("user id", args[0])
			if err != nil {
				return err
			}
			in := uf.input(cmd)
			if in.Username == nil && in.Email == nil && in.Password == nil && in.FirstName == nil &&
				in.LastName == nil && in.IsActive == nil && in.RoleIDs == nil {
				return errors.NewInputRequiredError("at least one field to change")
			}
			if err := a.authorized(ctx, authz.UserWrite); err != nil {
				return err
			}
			u, err := a.Client.UpdateUser(ctx, id, in)
			if err != nil {
				return a.apiError(err, "update user")
			}
			return a.print(userView{*u})
		},
	}
	uf.bind(cmd)
	return cmd
}

func newUsersDeleteCmd(a *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID("user id", args[0])
			if err != nil {
				return err
			}
			if err := a.authorized(ctx, authz.UserDelete); err != nil {
				return err
			}
			ok, err := a.confirm(yes, fmt.Sprintf("Delete user %d?", id))
			if err != nil || !ok {
				return err
			}
			if err := a.Client.DeleteUser(ctx, id); err != nil {
				return a.apiError(err, "delete user")
			}
			return a.print(message{Message: fmt.Sprintf("User %d deleted.", id)})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newUsersAssignRoleCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "assign-role <user-id> [role-id]",
		Short: "Grant a role to a user",
		Long:  "Grant a role to a user. Without a role id the role is picked from a list.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			args, err := withPicked(cmd.Context(), args, 2, a.pickRole)
			if err != nil {
				return err
			}
			return a.userRoleChange(cmd, args, "assign role", a.Client.AssignUserRole)
		},
	}
}

func newUsersRemoveRoleCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-role <user-id> <role-id>",
		Short: "Take a role away from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.userRoleChange(cmd, args, "remove role", a.Client.RemoveUserRole)
		},
	}
}

type userRoleFunc = func(ctx context.Context, userID, roleID int) (*hrapi.User, error)

func (a *App) userRoleChange(cmd *cobra.Command, args []string, action string, fn userRoleFunc) error {
	ctx := cmd.Context()
	userID, err := parseID("user id", args[0])
	if err != nil {
		return err
	}
	roleID, err := parseID("role id", args[1])
	if err != nil {
		return err
	}
	if err := a.authorized(ctx, authz.UserWrite); err != nil {
		return err
	}
	u, err := fn(ctx, userID, roleID)
	if err != nil {
		return a.apiError(err, action)
	}
	return a.print(userView{*u})
}

// confirm asks before a destructive action unless skip is set. Without a
// terminal the action needs --yes.
func (a *App) confirm(skip bool, question string) (bool, error) {
	if skip {
		return true, nil
	}
	if !a.interactive() {
		return false, errors.NewInputRequiredError("--yes")
	}
	return tui.PromptForConfirmation(question, false)
}

func parseID(field, raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errors.NewInputInvalidError(field, fmt.Sprintf("%q is not a positive integer", raw))
	}
	return id, nil
}
