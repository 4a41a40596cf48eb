package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/hradmin/internal/config"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/ux"
)

// configView prints the effective configuration; in text mode as YAML.
type configView struct {
	config.Config `yaml:",inline"`
}

func (v configView) Text(*ux.FormatterOptions) string {
	data, err := yaml.Marshal(v.Config)
	if err != nil {
		return err.Error()
	}
	return string(data)
}

func newConfigCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the hradmin configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.ErrCodeFileWriteFailed, "configuration already exists at "+path).
					WithSuggestion("Pass --force to overwrite it")
			}
			cfg := config.Default()
			cfg.Dir = a.Config.Dir
			if err := cfg.Save(path); err != nil {
				return err
			}
			return a.print(message{Message: "Wrote " + path})
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.print(message{Message: a.configPath()})
			},
		},
		&cobra.Command{
			Use:   "view",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.print(configView{*a.Config})
			},
		},
		initCmd,
	)
	return cmd
}

func (a *App) configPath() string {
	if a.Flags.ConfigPath != "" {
		return a.Flags.ConfigPath
	}
	return a.Config.Path()
}
