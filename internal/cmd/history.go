package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/audit"
	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/ux"
)

type history []*audit.Event

func (h history) Text(opts *ux.FormatterOptions) string {
	if len(h) == 0 {
		return "No audit events recorded."
	}
	rows := make([][]string, 0, len(h))
	for _, e := range h {
		rows = append(rows, []string{
			e.Timestamp.Local().Format(time.DateTime),
			string(e.Type),
			e.User,
			details(e),
		})
	}
	return ux.Table(opts, []string{"TIME", "EVENT", "USER", "DETAILS"}, rows)
}

func details(e *audit.Event) string {
	parts := []string{e.Message}
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Data[k]))
	}
	return strings.Join(parts, " ")
}

func newAuthHistoryCmd(a *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sign-ins, sign-outs and refused actions on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.Journal.Enabled() {
				return errors.New(errors.ErrCodeConfigInvalid, "the audit journal is disabled").
					WithSuggestion("Set audit.enabled: true in " + a.configPath())
			}
			events, err := a.Journal.Recent(limit)
			if err != nil {
				return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read the audit journal", err)
			}
			return a.print(history(events))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show, 0 for all")
	return cmd
}
