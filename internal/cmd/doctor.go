package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ckdreg/internal/health"
	"github.com/felixgeelhaar/ckdreg/internal/session"
	"github.com/felixgeelhaar/ckdreg/internal/ux"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run client diagnostics",
	Long: `Check whether ckdreg is able to work with the registry.

Checks include:
  • Configuration file and values
  • Token store and the expiry of the stored token
  • Reachability of the registry GraphQL API
  • The session the stored token resolves to

Examples:
  ckdreg doctor
  ckdreg doctor --output json`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringP("output", "o", "text", "output format: text, json, yaml")
	doctorCmd.Flags().Duration("timeout", health.DefaultTimeout, "time limit for each check")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	formatter, err := ux.NewFormatter(output, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return ux.FormatError(err, "")
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return ux.FormatError(err, "")
	}
	path := cmdCtx.ConfigFile()

	var report *health.Report
	a, err := newApp(cmd, appOptions{
		Notifier:     session.NotifierFunc(func(session.Notification) {}),
		HardRedirect: func(string) {},
	})
	if err != nil {
		manager := health.NewManager().WithTimeout(timeout)
		manager.AddChecker(&health.ConfigChecker{Path: path, Err: err})
		report = manager.Check(cmd.Context())
	} else {
		defer a.Close()
		report = doctor(cmd.Context(), a, path, timeout)
	}

	if err := formatter.Format(report); err != nil {
		return err
	}
	if !report.Healthy() {
		return fmt.Errorf("doctor found unhealthy checks")
	}
	return nil
}

// doctor resolves the session and runs every check against a.
func doctor(ctx context.Context, a *app, path string, timeout time.Duration) *health.Report {
	a.resolve()

	manager := health.NewManager().WithTimeout(timeout)
	manager.AddChecker(&health.ConfigChecker{Config: a.cfg, Path: path})
	manager.AddChecker(&health.TokenChecker{Store: a.store})
	manager.AddChecker(&health.EndpointChecker{Client: a.gql, Endpoint: a.gql.Endpoint()})
	manager.AddChecker(&health.SessionChecker{Session: a.session})

	report := manager.Check(ctx)
	a.logger.Debug("doctor finished", "status", report.Status.String(), "checks", len(report.Checks))
	return report
}
