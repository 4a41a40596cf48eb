package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "hradmin",
		Short: "Administer users, roles and permissions of the HR backend",
		Long: `hradmin signs you in to the HR management backend and lets you work with
users, roles and permissions according to the permissions your account holds.

The session credential is stored in the hradmin config directory and is
validated against the backend at the start of every command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default is $XDG_CONFIG_HOME/hradmin/config.yaml)")
	pf.StringP("format", "o", "", "output format: text, json or yaml")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("api-url", "", "HR backend API root, overriding the environment default")
	pf.Bool("no-color", false, "disable colored output")
	pf.Bool("no-prompt", false, "never prompt for missing input")

	root.AddCommand(
		newAuthCmd(a),
		newProfileCmd(a),
		newUsersCmd(a),
		newRolesCmd(a),
		newPermissionsCmd(a),
		newDashboardCmd(a),
		newDoctorCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// ExecuteContext runs the command line in os.Args.
func ExecuteContext(ctx context.Context) error {
	a := &App{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close(ctx, err)
	return err
}
