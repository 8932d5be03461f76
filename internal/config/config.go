package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.daybook/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	OwnerID        string `toml:"owner_id"`
	RemoteURL      string `toml:"remote_url"`

	// Sync knobs.
	MaxAttempts   int      `toml:"max_attempts"`
	DrainInterval duration `toml:"drain_interval"`

	// Notification knobs.
	CheckInterval duration `toml:"check_interval"`
	ShortHorizon  duration `toml:"short_horizon"`
	GraceWindow   duration `toml:"grace_window"`
	Retention     duration `toml:"retention"`
}

// duration is a TOML-friendly wrapper around time.Duration ("30s", "1h").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "default",
		MaxAttempts:    3,
		DrainInterval:  duration{30 * time.Second},
		CheckInterval:  duration{30 * time.Second},
		ShortHorizon:   duration{5 * time.Minute},
		GraceWindow:    duration{time.Hour},
		Retention:      duration{30 * 24 * time.Hour},
	}
}

// Load reads config from the given path, filling unset fields with
// defaults. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = def.DefaultProfile
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.DrainInterval.Duration <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.CheckInterval.Duration <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.ShortHorizon.Duration <= 0 {
		cfg.ShortHorizon = def.ShortHorizon
	}
	if cfg.GraceWindow.Duration <= 0 {
		cfg.GraceWindow = def.GraceWindow
	}
	if cfg.Retention.Duration <= 0 {
		cfg.Retention = def.Retention
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
