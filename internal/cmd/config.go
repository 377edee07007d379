package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/ckdreg/internal/config"
	"github.com/felixgeelhaar/ckdreg/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit ckdreg configuration",
	Long: `Manage ckdreg configuration stored at ~/.ckdreg/config.yaml

Every key can also be set through the environment, e.g. CKDREG_API_URL for
api.url. The store passphrase is only read from CKDREG_STORE_PASSPHRASE.

Examples:
  # View the effective configuration
  ckdreg config view

  # Get a specific value
  ckdreg config get api.url

  # Set a specific value
  ckdreg config set api.url https://registry.example.org/graphql

  # Show configuration file path
  ckdreg config path
`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	RunE:  runConfigView,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  `Retrieve the effective value of a configuration key using dot notation (e.g., session.poll_interval).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a specific configuration value",
	Long:  `Set the value of a configuration key using dot notation (e.g., api.timeout 30s).`,
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configViewCmd.Flags().StringP("output", "o", "yaml", "output format: yaml, json")

	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(configCmd)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}
	output, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load(cmdCtx.ConfigPath)
	if err != nil {
		return ux.FormatError(err, "loading configuration")
	}

	return viewConfig(cmd.OutOrStdout(), cmdCtx.ConfigFile(), cfg, output)
}

func viewConfig(w io.Writer, path string, cfg *config.Config, output string) error {
	if output == "json" {
		formatter, err := ux.NewFormatter(output, &ux.FormatterOptions{Writer: w})
		if err != nil {
			return err
		}
		return formatter.Format(cfg)
	}
	if output != "yaml" && output != "text" {
		return ux.FormatError(fmt.Errorf("unknown format: %s", output), "")
	}

	fmt.Fprintf(w, "# Configuration file: %s\n", path)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}

	value, err := config.Value(cmdCtx.ConfigPath, args[0])
	if err != nil {
		return ux.FormatError(err, "")
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}

	path := cmdCtx.ConfigFile()
	if err := config.Set(path, args[0], args[1]); err != nil {
		return ux.FormatError(err, "")
	}

	// Reject values that leave the configuration unusable.
	cfg, err := config.Load(path)
	if err != nil {
		return ux.FormatError(err, "")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: configuration is now invalid: %v\n", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s = %s in %s\n", args[0], args[1], path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cmdCtx.ConfigFile())
	return nil
}
