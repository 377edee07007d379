package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ckdreg/internal/config"
)

// CommandContext holds the global flags of one invocation so commands
// receive their settings explicitly instead of through package state.
type CommandContext struct {
	ConfigPath string
	APIURL     string
	LogLevel   string
	LogFormat  string
}

// NewCommandContext extracts command context from cobra.Command flags.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	apiURL, err := cmd.Flags().GetString("api-url")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigPath: configPath,
		APIURL:     apiURL,
		LogLevel:   logLevel,
		LogFormat:  logFormat,
	}, nil
}

// ConfigFile returns the file 'config set' writes to.
func (c *CommandContext) ConfigFile() string {
	if c.ConfigPath != "" {
		return c.ConfigPath
	}
	return config.DefaultPath()
}

// LoadConfig loads the configuration, applies flag overrides and validates
// the result.
func (c *CommandContext) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}

	if c.APIURL != "" {
		cfg.API.URL = c.APIURL
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
