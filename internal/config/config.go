// Package config loads application configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	AppEnv    string `yaml:"app_env"`
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Owner is the identity allowed to change policy and force sweeps.
	Owner string `yaml:"owner"`

	Ledger struct {
		Threshold            uint64 `yaml:"threshold"`
		Target               string `yaml:"target"`
		Minimum              uint64 `yaml:"minimum"`
		CooldownSeconds      int    `yaml:"cooldown_seconds"`
		CooldownFloorSeconds int    `yaml:"cooldown_floor_seconds"`
	} `yaml:"ledger"`

	Keeper struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"keeper"`

	Scheduler struct {
		Mode              string `yaml:"mode"`                // "ticker" or "cron"
		CheckEverySeconds int    `yaml:"check_every_seconds"` // ticker cadence
		CronSpec          string `yaml:"cron_spec"`           // cron schedule, seconds field included
	} `yaml:"scheduler"`

	Journal struct {
		Backend    string `yaml:"backend"` // "noop", "slog" or "sqlite"
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"journal"`

	Payout struct {
		Backend string `yaml:"backend"` // "log" or "memory"
		Retry   struct {
			Enabled     bool `yaml:"enabled"`
			MaxAttempts int  `yaml:"max_attempts"`
			BackoffMS   int  `yaml:"backoff_ms"`
		} `yaml:"retry"`
		Breaker struct {
			Enabled          bool `yaml:"enabled"`
			FailureThreshold uint `yaml:"failure_threshold"`
			DelaySeconds     int  `yaml:"delay_seconds"`
			SuccessThreshold uint `yaml:"success_threshold"`
		} `yaml:"breaker"`
	} `yaml:"payout"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is fine; the environment and
// defaults carry the rest.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("POOLKEEPER_APP_ENV"); v != "" {
		cfg.AppEnv = v
	}
	if v := os.Getenv("POOLKEEPER_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("POOLKEEPER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("POOLKEEPER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("POOLKEEPER_OWNER"); v != "" {
		cfg.Owner = v
	}
	if v := os.Getenv("POOLKEEPER_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Ledger.Threshold = threshold
		}
	}
	if v := os.Getenv("POOLKEEPER_TARGET"); v != "" {
		cfg.Ledger.Target = v
	}
	if v := os.Getenv("POOLKEEPER_MINIMUM"); v != "" {
		if minimum, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Ledger.Minimum = minimum
		}
	}
	if v := os.Getenv("POOLKEEPER_COOLDOWN_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.CooldownSeconds = seconds
		}
	}
	if v := os.Getenv("POOLKEEPER_POLL_INTERVAL_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			cfg.Keeper.PollIntervalSeconds = seconds
		}
	}
	if v := os.Getenv("POOLKEEPER_SCHEDULER_MODE"); v != "" {
		cfg.Scheduler.Mode = v
	}
	if v := os.Getenv("POOLKEEPER_CHECK_EVERY_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.CheckEverySeconds = seconds
		}
	}
	if v := os.Getenv("POOLKEEPER_CRON_SPEC"); v != "" {
		cfg.Scheduler.CronSpec = v
	}
	if v := os.Getenv("POOLKEEPER_JOURNAL_BACKEND"); v != "" {
		cfg.Journal.Backend = v
	}
	if v := os.Getenv("POOLKEEPER_SQLITE_PATH"); v != "" {
		cfg.Journal.SQLitePath = v
	}
	if v := os.Getenv("POOLKEEPER_PAYOUT_BACKEND"); v != "" {
		cfg.Payout.Backend = v
	}

	// Defaults
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.Keeper.PollIntervalSeconds == 0 {
		cfg.Keeper.PollIntervalSeconds = 30
	}
	if cfg.Scheduler.Mode == "" {
		cfg.Scheduler.Mode = "ticker"
	}
	if cfg.Scheduler.CheckEverySeconds == 0 {
		cfg.Scheduler.CheckEverySeconds = 5
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = "slog"
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = "data/poolkeeper.db"
	}
	if cfg.Payout.Backend == "" {
		cfg.Payout.Backend = "log"
	}
	if cfg.Payout.Retry.MaxAttempts == 0 {
		cfg.Payout.Retry.MaxAttempts = 3
	}
	if cfg.Payout.Retry.BackoffMS == 0 {
		cfg.Payout.Retry.BackoffMS = 100
	}

	return cfg, nil
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if c.Ledger.CooldownSeconds < 0 {
		return fmt.Errorf("ledger.cooldown_seconds must not be negative")
	}
	if c.Ledger.CooldownFloorSeconds < 0 {
		return fmt.Errorf("ledger.cooldown_floor_seconds must not be negative")
	}
	if c.Keeper.PollIntervalSeconds <= 0 {
		return fmt.Errorf("keeper.poll_interval_seconds must be positive")
	}
	switch c.Scheduler.Mode {
	case "ticker":
		if c.Scheduler.CheckEverySeconds <= 0 {
			return fmt.Errorf("scheduler.check_every_seconds must be positive")
		}
	case "cron":
		if c.Scheduler.CronSpec == "" {
			return fmt.Errorf("scheduler.cron_spec is required in cron mode")
		}
	default:
		return fmt.Errorf("scheduler.mode must be ticker or cron, got %q", c.Scheduler.Mode)
	}
	switch c.Journal.Backend {
	case "noop", "slog":
	case "sqlite":
		if c.Journal.SQLitePath == "" {
			return fmt.Errorf("journal.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("journal.backend must be noop, slog or sqlite, got %q", c.Journal.Backend)
	}
	switch c.Payout.Backend {
	case "log", "memory":
	default:
		return fmt.Errorf("payout.backend must be log or memory, got %q", c.Payout.Backend)
	}
	if c.Payout.Retry.Enabled && c.Payout.Retry.MaxAttempts < 1 {
		return fmt.Errorf("payout.retry.max_attempts must be at least 1")
	}
	return nil
}
