// Package config handles ckdreg configuration using Viper.
//
// Values are layered: built-in defaults, then ~/.ckdreg/config.yaml (or the
// file given with --config), then CKDREG_* environment variables. Command
// flags are applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
)

// EnvPrefix is the prefix of environment overrides, e.g. CKDREG_API_URL.
const EnvPrefix = "CKDREG"

// Config holds the application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api" yaml:"api" json:"api"`
	Session SessionConfig `mapstructure:"session" yaml:"session" json:"session"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store" json:"store"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// APIConfig describes the registry GraphQL endpoint and transport tuning.
type APIConfig struct {
	URL       string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	RetryMax  int           `mapstructure:"retry_max" yaml:"retry_max" json:"retry_max"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"` // 0 disables the response cache
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	LoginPath    string        `mapstructure:"login_path" yaml:"login_path" json:"login_path"`
}

// StoreConfig locates the encrypted token store.
type StoreConfig struct {
	Path       string `mapstructure:"path" yaml:"path" json:"path"`
	Passphrase string `mapstructure:"passphrase" yaml:"-" json:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// MetricsConfig holds the optional Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`
}

// Dir returns the ckdreg configuration directory (~/.ckdreg).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ckdreg"
	}
	return filepath.Join(home, ".ckdreg")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads configuration from file and environment.
// A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, regerrors.Wrap(regerrors.ErrCodeConfigLoad, "failed to decode configuration", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)

	return &cfg, nil
}

// Value returns the effective value of a dotted key such as "api.url".
func Value(configPath, key string) (any, error) {
	if !IsKnownKey(key) {
		return nil, regerrors.NewConfigInvalidError(key, "unknown key")
	}
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return v.Get(key), nil
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return regerrors.NewConfigInvalidError("api.url", fmt.Sprintf("%q is not an http(s) URL", c.API.URL))
	}
	if c.API.Timeout <= 0 {
		return regerrors.NewConfigInvalidError("api.timeout", "must be positive")
	}
	if c.API.RetryMax < 0 {
		return regerrors.NewConfigInvalidError("api.retry_max", "must not be negative")
	}
	if c.API.RateLimit < 0 {
		return regerrors.NewConfigInvalidError("api.rate_limit", "must not be negative")
	}
	if c.API.CacheSize < 0 {
		return regerrors.NewConfigInvalidError("api.cache_size", "must not be negative")
	}
	if c.Session.PollInterval <= 0 {
		return regerrors.NewConfigInvalidError("session.poll_interval", "must be positive")
	}
	if !strings.HasPrefix(c.Session.LoginPath, "/") {
		return regerrors.NewConfigInvalidError("session.login_path", "must start with /")
	}
	if c.Store.Path == "" {
		return regerrors.NewConfigInvalidError("store.path", "must not be empty")
	}
	return nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case configPath != "" && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, regerrors.Wrap(regerrors.ErrCodeConfigLoad, "failed to read configuration", err)
		}
	}

	return v, nil
}

// defaults is the single source of known keys.
var defaults = map[string]any{
	"api.url":               "http://localhost:4000/graphql",
	"api.timeout":           "15s",
	"api.retry_max":         3,
	"api.rate_limit":        5.0,
	"api.cache_size":        128,
	"session.poll_interval": "30s",
	"session.login_path":    "/login",
	"store.path":            filepath.Join(Dir(), "credentials.json"),
	"store.passphrase":      "",
	"log.level":             "info",
	"log.format":            "text",
	"metrics.textfile":      "",
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// IsKnownKey reports whether key is a recognised configuration key.
func IsKnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
