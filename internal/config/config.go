// Package config loads and validates recorder configuration from an optional
// file (YAML, TOML or JSON) and INPUTSENTRY_* environment variables using Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "INPUTSENTRY"

// Backpressure policies for the hand-off channel.
const (
	BackpressureBlock      = "block"
	BackpressureDropOldest = "drop-oldest"
)

// Failure policies applied when a batch exhausts its retries.
const (
	FailureSpill = "spill"
	FailureDrop  = "drop"
	FailureFatal = "fatal"
)

// Config holds the recorder configuration.
type Config struct {
	// EnabledBackends lists capture backends by id (evdev, hook).
	EnabledBackends []string `mapstructure:"enabled_backends"`
	// StoragePath is the SQLite database file.
	StoragePath string `mapstructure:"storage_path"`

	BatchMaxEvents   int           `mapstructure:"batch_max_events"`
	BatchMaxInterval time.Duration `mapstructure:"batch_max_interval"`

	// ChannelCapacity bounds the hand-off channel between capture and persistence.
	ChannelCapacity    int    `mapstructure:"channel_capacity"`
	BackpressurePolicy string `mapstructure:"backpressure_policy"`

	// SpillPath is a buntdb file receiving batches that could not be committed. Empty disables spilling.
	SpillPath string `mapstructure:"spill_path"`
	// FailurePolicy defaults to spill when SpillPath is set, drop otherwise.
	FailurePolicy string        `mapstructure:"failure_policy"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`

	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	LivenessWindow time.Duration `mapstructure:"liveness_window"`

	// IgnoreDevices holds globs matched against platform id or device name.
	IgnoreDevices []string `mapstructure:"ignore_devices"`
	// MirrorPath receives every committed event as a JSON line; "-" is stdout.
	MirrorPath string `mapstructure:"mirror_path"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled_backends", []string{"evdev"})
	v.SetDefault("storage_path", "inputsentry.db")
	v.SetDefault("batch_max_events", 100)
	v.SetDefault("batch_max_interval", "60s")
	v.SetDefault("channel_capacity", 1024)
	v.SetDefault("backpressure_policy", BackpressureBlock)
	v.SetDefault("spill_path", "")
	v.SetDefault("failure_policy", "")
	v.SetDefault("max_retries", 5)
	v.SetDefault("retry_backoff", "200ms")
	v.SetDefault("poll_timeout", "1s")
	v.SetDefault("liveness_window", "5m")
	v.SetDefault("ignore_devices", []string{})
	v.SetDefault("mirror_path", "")
	v.SetDefault("log_level", "info")
}

// Default returns the configuration used when no file and no environment is given.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// defaults are static and always valid
		panic(err)
	}
	return cfg
}

// Load reads path (if non-empty), overlays INPUTSENTRY_* environment variables,
// and validates the result. A missing explicitly named file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills derived defaults and reports every invalid field at once.
func (c *Config) Validate() error {
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailureDrop
		if c.SpillPath != "" {
			c.FailurePolicy = FailureSpill
		}
	}

	var errs []error
	if len(c.EnabledBackends) == 0 {
		errs = append(errs, errors.New("config: enabled_backends must name at least one backend"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("config: storage_path must be set"))
	}
	if c.BatchMaxEvents <= 0 {
		errs = append(errs, errors.New("config: batch_max_events must be positive"))
	}
	if c.BatchMaxInterval <= 0 {
		errs = append(errs, errors.New("config: batch_max_interval must be positive"))
	}
	if c.ChannelCapacity <= 0 {
		errs = append(errs, errors.New("config: channel_capacity must be positive"))
	}
	if !slices.Contains([]string{BackpressureBlock, BackpressureDropOldest}, c.BackpressurePolicy) {
		errs = append(errs, fmt.Errorf("config: backpressure_policy %q must be %s or %s", c.BackpressurePolicy, BackpressureBlock, BackpressureDropOldest))
	}
	switch c.FailurePolicy {
	case FailureDrop, FailureFatal:
	case FailureSpill:
		if c.SpillPath == "" {
			errs = append(errs, errors.New("config: failure_policy spill requires spill_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: failure_policy %q must be spill, drop or fatal", c.FailurePolicy))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("config: max_retries must not be negative"))
	}
	if c.RetryBackoff <= 0 {
		errs = append(errs, errors.New("config: retry_backoff must be positive"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("config: poll_timeout must be positive"))
	}
	if c.LivenessWindow < 0 {
		errs = append(errs, errors.New("config: liveness_window must not be negative"))
	}
	return errors.Join(errs...)
}
