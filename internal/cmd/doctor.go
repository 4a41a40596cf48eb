package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/health"
	"github.com/felixgeelhaar/hradmin/internal/ux"
)

type doctorReport struct {
	Status health.Status   `json:"status" yaml:"status"`
	Checks []health.Report `json:"checks" yaml:"checks"`
}

func (d doctorReport) Text(opts *ux.FormatterOptions) string {
	rows := make([][]string, 0, len(d.Checks))
	for _, c := range d.Checks {
		msg := c.Result.Message
		if fix, ok := c.Result.Details["fix"].(string); ok {
			msg += " (" + fix + ")"
		}
		rows = append(rows, []string{c.Name, c.Result.Status.String(), msg, c.Result.Latency.Round(time.Millisecond).String()})
	}
	return ux.Table(opts, []string{"CHECK", "STATUS", "DETAILS", "TOOK"}, rows) + "\nOverall: " + d.Status.String()
}

func newDoctorCmd(a *App) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:         "doctor",
		Short:       "Check the configuration, credential file, backend and session",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{lenientConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := health.NewManager().WithTimeout(timeout)
			m.AddChecker(health.NewConfigChecker(func() error { return a.configErr }, a.configPath()))
			m.AddChecker(health.NewCredentialFileChecker(a.Store.Path()))
			m.AddChecker(health.NewBackendChecker(a.Client, a.Config.BaseURL()))
			m.AddChecker(health.NewSessionChecker(a.Session))

			reports := m.Check(cmd.Context())
			report := doctorReport{Status: health.OverallStatus(reports), Checks: reports}
			if err := a.print(report); err != nil {
				return err
			}

			if report.Status == health.StatusUnhealthy {
				failed := 0
				for _, r := range reports {
					if r.Result.Status == health.StatusUnhealthy {
						failed++
					}
				}
				return errors.New(errors.ErrCodeRequestFailed, fmt.Sprintf("%d check(s) unhealthy", failed))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "time limit for each check")
	return cmd
}
