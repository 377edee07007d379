package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ckdreg",
	Short: "Terminal client for the pediatric CKD registry",
	Long: `ckdreg is a terminal client for the pediatric chronic kidney disease registry.
It signs you in to the registry API, keeps your session fresh, and gives
institute staff a console for browsing enrolled patients.

Institute administrators get access once a registry administrator has
approved their institute; until then the session is gated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command with ctx
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is ~/.ckdreg/config.yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "registry GraphQL endpoint (overrides api.url)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
}
