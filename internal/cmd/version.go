package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/ux"
	"github.com/felixgeelhaar/hradmin/internal/version"
)

type versionView struct {
	version.Info `yaml:",inline"`
	verbose      bool
}

func (v versionView) Text(*ux.FormatterOptions) string {
	if v.verbose {
		return v.Info.String()
	}
	return "hradmin " + v.Version
}

func newVersionCmd(a *App) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.print(versionView{Info: version.GetInfo(), verbose: verbose})
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed version information")
	return cmd
}
