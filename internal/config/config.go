// Package config loads hradmin settings from defaults, an optional YAML
// file, and HRADMIN_* environment variables, in increasing precedence.
// Command-line flags are applied on top by the caller.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/hradmin/internal/errors"
	"github.com/felixgeelhaar/hradmin/internal/telemetry"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DefaultDevAPIURL is the local backend used during development.
	DefaultDevAPIURL = "http://localhost:5000/api"

	// ProductionAPIPath is appended to ProdHost in production.
	ProductionAPIPath = "/api"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HRADMIN_"

	FileName = "config.yaml"
)

// Config is the effective configuration of one run.
type Config struct {
	Environment string `yaml:"environment" json:"environment" env:"ENV"`

	// APIURL, when set, overrides environment-based selection.
	APIURL    string `yaml:"api_url,omitempty" json:"api_url,omitempty" env:"API_URL"`
	DevAPIURL string `yaml:"dev_api_url" json:"dev_api_url" env:"DEV_API_URL"`
	// ProdHost is the scheme and host serving the production backend, for
	// example "https://hr.example.com".
	ProdHost string `yaml:"prod_host,omitempty" json:"prod_host,omitempty" env:"PROD_HOST"`

	// Dir holds the credential file. It is not read from the file itself.
	Dir string `yaml:"-" json:"config_dir" env:"CONFIG_DIR"`

	Timeout   time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int           `yaml:"rate_burst" json:"rate_burst" env:"RATE_BURST"`

	// Output is the default output format: text, json or yaml.
	Output string `yaml:"output" json:"output" env:"OUTPUT"`

	Log       LogConfig        `yaml:"log" json:"log" envPrefix:"LOG_"`
	Audit     AuditConfig      `yaml:"audit" json:"audit" envPrefix:"AUDIT_"`
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry" envPrefix:"TELEMETRY_"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" env:"LEVEL"`
	Format string `yaml:"format" json:"format" env:"FORMAT"`
}

// AuditConfig controls the local session journal kept under Dir/audit.
type AuditConfig struct {
	Enabled     bool  `yaml:"enabled" json:"enabled" env:"ENABLED"`
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size" env:"MAX_FILE_SIZE"`
	MaxFiles    int   `yaml:"max_files" json:"max_files" env:"MAX_FILES"`
}

// AuditDir is where the journal lives.
func (c *Config) AuditDir() string {
	return filepath.Join(c.Dir, "audit")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		DevAPIURL:   DefaultDevAPIURL,
		Dir:         DefaultDir(),
		Timeout:     30 * time.Second,
		RateBurst:   1,
		Output:      "text",
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Audit: AuditConfig{
			Enabled:     true,
			MaxFileSize: 1 << 20,
			MaxFiles:    3,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultDir is the per-user hradmin directory.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "hradmin")
}

// Path is the location of the YAML file inside c.Dir.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, FileName)
}

// Load builds the configuration. path may be empty, meaning the default
// file in the config directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	// The directory can be moved by the environment before the file is read.
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		cfg.Dir = dir
	}
	if path == "" {
		path = cfg.Path()
	}

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.NewConfigParseError("environment", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read configuration", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewConfigParseError(path, err)
	}
	return nil
}

// Save writes the configuration as YAML to path, creating the directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to marshal configuration", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write configuration", err)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("environment %q must be %q or %q", c.Environment, EnvDevelopment, EnvProduction))
	}

	if c.APIURL != "" {
		if err := checkURL("api_url", c.APIURL); err != nil {
			return err
		}
	} else if c.Environment == EnvProduction {
		if c.ProdHost == "" {
			return errors.NewConfigInvalidError("prod_host is required in production when api_url is not set")
		}
		if err := checkURL("prod_host", c.ProdHost); err != nil {
			return err
		}
	} else if err := checkURL("dev_api_url", c.DevAPIURL); err != nil {
		return err
	}

	switch c.Output {
	case "text", "json", "yaml":
	default:
		return errors.NewConfigInvalidError(fmt.Sprintf("output %q must be text, json or yaml", c.Output))
	}

	if c.Timeout <= 0 {
		return errors.NewConfigInvalidError("timeout must be positive")
	}
	if c.RateLimit < 0 {
		return errors.NewConfigInvalidError("rate_limit must not be negative")
	}
	if c.Audit.MaxFileSize <= 0 || c.Audit.MaxFiles < 0 {
		return errors.NewConfigInvalidError("audit.max_file_size must be positive and audit.max_files not negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.NewConfigInvalidError("telemetry.sample_rate must be between 0 and 1")
	}
	return nil
}

// BaseURL selects the API root: APIURL if set, otherwise the development
// backend or ProdHost plus "/api" depending on Environment.
func (c *Config) BaseURL() string {
	if c.APIURL != "" {
		return strings.TrimRight(c.APIURL, "/")
	}
	if c.Environment == EnvProduction {
		return strings.TrimRight(c.ProdHost, "/") + ProductionAPIPath
	}
	return strings.TrimRight(c.DevAPIURL, "/")
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigInvalidError(fmt.Sprintf("%s %q must be an absolute http(s) URL", field, raw))
	}
	return nil
}
