// Package config defines the kiejob application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level kiejob configuration.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Credential CredentialConfig `mapstructure:"credential"`
	Poll       PollConfig       `mapstructure:"poll"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Models     []ModelConfig    `mapstructure:"models"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	History    HistoryConfig    `mapstructure:"history"`
	Output     OutputConfig     `mapstructure:"output"`
}

// APIConfig locates the remote endpoints and bounds each HTTP call.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UploadURL      string        `mapstructure:"upload_url"`
	UploadPath     string        `mapstructure:"upload_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`

	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CredentialConfig tells the credential provider where the API key lives.
type CredentialConfig struct {
	File   string `mapstructure:"file"`
	EnvVar string `mapstructure:"env_var"`
}

// PollConfig holds the default polling cadence.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RetryConfig is the default resubmission policy.
type RetryConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

// ModelConfig overrides catalog settings for a single model. Models are a
// list rather than a map because names such as "kling-2.6/image-to-video"
// contain viper's key delimiter.
type ModelConfig struct {
	Name           string        `mapstructure:"name"`
	TimeoutFloor   time.Duration `mapstructure:"timeout_floor"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
	Verbose          bool     `mapstructure:"verbose"`
}

// HistoryConfig controls the local task ledger.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// OutputConfig controls where downloaded artifacts are written.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://api.kie.ai",
			UploadURL:      "https://kieai.redpandaai.co/api/file-stream-upload",
			UploadPath:     "images/user-uploads",
			RequestTimeout: 30 * time.Second,
			UploadTimeout:  180 * time.Second,
		},
		Credential: CredentialConfig{
			File:   "config/kie_key.txt",
			EnvVar: "KIE_API_KEY",
		},
		Poll: PollConfig{
			Interval: time.Second,
			Timeout:  300 * time.Second,
		},
		Retry: RetryConfig{
			Enabled:    true,
			MaxRetries: 2,
			Backoff:    3 * time.Second,
		},
		Logger: LoggerConfig{
			Level:            "info",
			Encoding:         "console",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
			Verbose:          true,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/kiejob.db",
		},
		Output: OutputConfig{
			Dir: "./output",
		},
	}
}

// Load reads the config file at path (if non-empty), overlays KIEJOB_*
// environment variables and returns the result on top of DefaultConfig.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix("KIEJOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override keys that
// never appear in the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.upload_url", d.API.UploadURL)
	v.SetDefault("api.upload_path", d.API.UploadPath)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout)
	v.SetDefault("api.upload_timeout", d.API.UploadTimeout)
	v.SetDefault("api.requests_per_second", d.API.RequestsPerSecond)
	v.SetDefault("api.burst", d.API.Burst)
	v.SetDefault("credential.file", d.Credential.File)
	v.SetDefault("credential.env_var", d.Credential.EnvVar)
	v.SetDefault("poll.interval", d.Poll.Interval)
	v.SetDefault("poll.timeout", d.Poll.Timeout)
	v.SetDefault("retry.enabled", d.Retry.Enabled)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.backoff", d.Retry.Backoff)
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.encoding", d.Logger.Encoding)
	v.SetDefault("logger.output_paths", d.Logger.OutputPaths)
	v.SetDefault("logger.error_output_paths", d.Logger.ErrorOutputPaths)
	v.SetDefault("logger.verbose", d.Logger.Verbose)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("output.dir", d.Output.Dir)
}
