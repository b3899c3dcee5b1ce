// Package config loads and validates the engine's YAML configuration.
// Values of the form ${VAR} or ${VAR:default} are expanded from the
// environment before parsing, so secrets and per-host paths stay out of
// the file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Session     SessionConfig     `yaml:"session"`
	Trading     TradingConfig     `yaml:"trading"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Sim         SimConfig         `yaml:"sim"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	LogLevel      string `yaml:"log_level"`
	MetricsPort   int    `yaml:"metrics_port"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	JournalPath   string `yaml:"journal_path"`
	DryRun        bool   `yaml:"dry_run"`
}

// SessionConfig holds the day's phase boundaries as local wall-clock
// times in HH:MM:SS. A phase whose time is already past runs
// immediately on startup.
type SessionConfig struct {
	EntryTime string `yaml:"entry_time"`
	OpenTime  string `yaml:"open_time"`
	CoverTime string `yaml:"cover_time"`
	CloseTime string `yaml:"close_time"`
}

// TradingConfig holds the strategy parameters.
type TradingConfig struct {
	PositionFile     string  `yaml:"position_file"`
	ContractFile     string  `yaml:"contract_file"`
	EntryPct         float64 `yaml:"entry_pct"`
	StopLossPct      float64 `yaml:"stop_loss_pct"`
	StopProfitPct    float64 `yaml:"stop_profit_pct"`
	MaxOrderQuantity int64   `yaml:"max_order_quantity"`
	OrderRateLimit   float64 `yaml:"order_rate_limit"`
	CoverPolicy      string  `yaml:"cover_policy"`
}

// ConcurrencyConfig sizes the callback worker pool.
type ConcurrencyConfig struct {
	MaxWorkers  int `yaml:"max_workers"`
	MaxCapacity int `yaml:"max_capacity"`
}

// SimConfig tunes the simulated broker used in dry-run mode. TickTape
// optionally names a CSV of timed ticks to replay through the session.
type SimConfig struct {
	AckLatencyMS int    `yaml:"ack_latency_ms"`
	TickTape     string `yaml:"tick_tape"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok {
			return value
		}
		return groups[2]
	})
}

// LoadConfig reads, expands, parses, and validates the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate applies defaults and rejects values the engine cannot run
// with.
func (c *Config) Validate() error {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.App.LogLevel)
	}
	if c.App.MetricsPort == 0 {
		c.App.MetricsPort = 9091
	}

	for _, t := range []struct {
		name, value string
	}{
		{"entry_time", c.Session.EntryTime},
		{"open_time", c.Session.OpenTime},
		{"cover_time", c.Session.CoverTime},
		{"close_time", c.Session.CloseTime},
	} {
		if t.value == "" {
			continue
		}
		if _, err := time.Parse("15:04:05", t.value); err != nil {
			return fmt.Errorf("session.%s %q: %w", t.name, t.value, err)
		}
	}

	if c.Trading.PositionFile == "" {
		return fmt.Errorf("trading.position_file is required")
	}
	if c.Trading.ContractFile == "" {
		return fmt.Errorf("trading.contract_file is required")
	}
	if c.Trading.EntryPct < 0 || c.Trading.EntryPct >= 0.1 {
		return fmt.Errorf("trading.entry_pct %v out of range [0, 0.1)", c.Trading.EntryPct)
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 0.1 {
		return fmt.Errorf("trading.stop_loss_pct %v out of range (0, 0.1)", c.Trading.StopLossPct)
	}
	if c.Trading.StopProfitPct <= 0 || c.Trading.StopProfitPct >= 0.1 {
		return fmt.Errorf("trading.stop_profit_pct %v out of range (0, 0.1)", c.Trading.StopProfitPct)
	}
	if c.Trading.MaxOrderQuantity <= 0 {
		c.Trading.MaxOrderQuantity = 499
	}
	if c.Trading.OrderRateLimit <= 0 {
		c.Trading.OrderRateLimit = 4
	}
	switch c.Trading.CoverPolicy {
	case "", "extreme", "snapshot":
	default:
		return fmt.Errorf("unknown trading.cover_policy %q", c.Trading.CoverPolicy)
	}

	if c.Concurrency.MaxWorkers <= 0 {
		c.Concurrency.MaxWorkers = 8
	}
	if c.Concurrency.MaxCapacity <= 0 {
		c.Concurrency.MaxCapacity = 1024
	}
	if c.Sim.AckLatencyMS <= 0 {
		c.Sim.AckLatencyMS = 50
	}
	return nil
}

// PhaseTime resolves an HH:MM:SS string onto today's date in local
// time. An empty string returns the zero time, meaning "run now".
func PhaseTime(now time.Time, hhmmss string) (time.Time, error) {
	if hhmmss == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("15:04:05", hhmmss)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse phase time %q: %w", hhmmss, err)
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
}
