package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ckdreg/internal/config"
	"github.com/felixgeelhaar/ckdreg/internal/session"
	"github.com/felixgeelhaar/ckdreg/internal/tui"
	"github.com/felixgeelhaar/ckdreg/internal/ux"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the full-screen registry console",
	Long: `Open the full-screen registry console.

The console follows your session: sign in or create an account, browse
patients once access is granted, or watch your institute's review while it
is pending. Logs are written to ~/.ckdreg/console.log while it runs.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !tui.IsInteractive() {
		return fmt.Errorf("the console needs a terminal; use 'ckdreg auth' and 'ckdreg patients' in scripts")
	}

	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return ux.FormatError(err, "creating ~/.ckdreg")
	}
	logFile, err := os.OpenFile(filepath.Join(config.Dir(), "console.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return ux.FormatError(err, "opening console log")
	}
	defer logFile.Close()

	stderr := cmd.ErrOrStderr()
	adapter := tui.NewAdapter(session.WriterNotifier(stderr), session.WriterRedirect(stderr))

	a, err := newApp(cmd, appOptions{Notifier: adapter, HardRedirect: adapter.Navigate, Log: logFile})
	if err != nil {
		return ux.FormatError(err, "")
	}
	defer a.Close()

	a.session.Initialize()
	console := tui.NewConsole(cmd.Context(), a.session, a.api)

	a.logger.Info("console started", "endpoint", a.cfg.API.URL)
	return tui.Run(cmd.Context(), console, adapter, a.session)
}
