package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/tui"
)

func newDashboardCmd(a *App) *cobra.Command {
	var altScreen bool
	cmd := &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui"},
		Short:   "Browse users, roles and permissions interactively",
		Long: `Open a terminal dashboard. The navigation only offers the screens your
permissions allow, and follows changes to the session while it is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.signedIn(ctx); err != nil {
				return err
			}

			opts := []tea.ProgramOption{tea.WithInput(a.in), tea.WithOutput(a.out)}
			if altScreen {
				opts = append(opts, tea.WithAltScreen())
			}
			m, err := tui.RunDashboard(ctx, a.Session, a.Client, opts...)
			if err != nil {
				return err
			}
			if m.SignedOut() {
				return a.print(message{Message: "Logged out."})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "use the terminal's alternate screen")
	return cmd
}
