package cmd

import (
	"github.com/spf13/cobra"
)

// CommandContext holds the global flags of one invocation.
type CommandContext struct {
	ConfigPath string
	Format     string
	LogLevel   string
	APIURL     string
	NoColor    bool
	NoPrompt   bool
}

// NewCommandContext extracts the persistent flags from cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return nil, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return nil, err
	}
	apiURL, err := flags.GetString("api-url")
	if err != nil {
		return nil, err
	}
	noColor, err := flags.GetBool("no-color")
	if err != nil {
		return nil, err
	}
	noPrompt, err := flags.GetBool("no-prompt")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigPath: configPath,
		Format:     format,
		LogLevel:   logLevel,
		APIURL:     apiURL,
		NoColor:    noColor,
		NoPrompt:   noPrompt,
	}, nil
}
