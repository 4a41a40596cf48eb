package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/hrapi"
	"github.com/felixgeelhaar/hradmin/internal/tui"
)

func newProfileCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your own account",
	}
	cmd.AddCommand(newProfileShowCmd(a), newProfileUpdateCmd(a))
	return cmd
}

func newProfileShowCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(userView{id.User()})
		},
	}
}

func newProfileUpdateCmd(a *App) *cobra.Command {
	var email, firstName, lastName string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your email address or name",
		Example: `  hradmin profile update --first-name Ada --last-name Lovelace
  hradmin profile update    # opens a form`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			id, err := a.signedIn(ctx)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			var update hrapi.ProfileUpdate
			if f.Changed("email") {
				update.Email = &email
			}
			if f.Changed("first-name") {
				update.FirstName = &firstName
			}
			if f.Changed("last-name") {
				update.LastName = &lastName
			}

			if update == (hrapi.ProfileUpdate{}) {
				if !a.interactive() {
					return errors.NewInputRequiredError("one of --email, --first-name or --last-name")
				}
				u := id.User()
				email, firstName, lastName = u.Email, u.FirstName, u.LastName
				if err := tui.ProfileForm(&email, &firstName, &lastName).Run(); err != nil {
					return err
				}
				update = hrapi.ProfileUpdate{Email: &email, FirstName: &firstName, LastName: &lastName}
			}

			res := a.Session.UpdateProfile(ctx, update)
			if !res.Success {
				return errors.NewRequestFailedError("profile update", res.Error)
			}
			return a.print(userView{res.Data.User()})
		},
	}
	f := cmd.Flags()
	f.StringVar(&email, "email", "", "new email address")
	f.StringVar(&firstName, "first-name", "", "new first name")
	f.StringVar(&lastName, "last-name", "", "new last name")
	return cmd
}
