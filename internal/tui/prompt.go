package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
)

// PromptForConfirmation asks a yes/no question.
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue
	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// Option is one choice of a selection prompt; Value is usually a record id.
type Option struct {
	Label string
	Value int
}

// PromptForSelect asks the user to pick one of options and returns its Value.
func PromptForSelect(message string, options []Option) (int, error) {
	if len(options) == 0 {
		return 0, fmt.Errorf("no options to choose from")
	}

	choices := make([]huh.Option[int], len(options))
	for i, opt := range options {
		choices[i] = huh.NewOption(opt.Label, opt.Value)
	}

	selected := options[0].Value
	field := huh.NewSelect[int]().
		Title(message).
		Options(choices...).
		Value(&selected)

	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return 0, fmt.Errorf("prompt failed: %w", err)
	}
	return selected, nil
}

// ShouldPrompt reports whether missing input may be asked for. Prompts are
// off in CI, when HRADMIN_NO_PROMPT is set, and when stdin is not a terminal.
func ShouldPrompt() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "HRADMIN_NO_PROMPT"} {
		if os.Getenv(v) != "" {
			return false
		}
	}
	return stdinIsTerminal()
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
