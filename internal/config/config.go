// Package config provides YAML-based configuration loading for FlightCheck.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level FlightCheck configuration, loaded from flightcheck.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Discord   DiscordConfig   `yaml:"discord"`
	Slack     SlackConfig     `yaml:"slack"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DatabaseConfig holds connection settings for the build store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
}

// MonitorConfig controls the sweep scheduler and prober.
type MonitorConfig struct {
	Schedule        string `yaml:"schedule"`          // 5-field cron expression
	InitialDelaySec int    `yaml:"initial_delay_sec"` // delay before first sweep after boot
	JitterMaxSec    int    `yaml:"jitter_max_sec"`    // random delay added to each sweep start
	ProbeTimeoutSec int    `yaml:"probe_timeout_sec"` // per-probe HTTP deadline
	ProbeDelaySec   int    `yaml:"probe_delay_sec"`   // pacing between probes within a sweep
	FreshnessSec    int    `yaml:"freshness_sec"`     // on-demand sweeps skip builds checked within this window
	Classifier      string `yaml:"classifier"`        // "keyword" (GET + body) or "redirect" (status + Location only)
}

// InitialDelay returns the boot delay as a duration.
func (m MonitorConfig) InitialDelay() time.Duration {
	return time.Duration(m.InitialDelaySec) * time.Second
}

// JitterMax returns the per-sweep jitter bound as a duration.
func (m MonitorConfig) JitterMax() time.Duration {
	return time.Duration(m.JitterMaxSec) * time.Second
}

// ProbeTimeout returns the per-probe deadline as a duration.
func (m MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutSec) * time.Second
}

// ProbeDelay returns the inter-probe pacing as a duration.
func (m MonitorConfig) ProbeDelay() time.Duration {
	return time.Duration(m.ProbeDelaySec) * time.Second
}

// Freshness returns the on-demand freshness window as a duration.
func (m MonitorConfig) Freshness() time.Duration {
	return time.Duration(m.FreshnessSec) * time.Second
}

// DiscordConfig holds the notification channel settings for Discord.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackConfig holds the notification channel settings for Slack.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DashboardConfig holds the HTTP API server settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "flightcheck.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "flightcheck"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "*/5 * * * *"
	}
	if c.Monitor.InitialDelaySec == 0 {
		c.Monitor.InitialDelaySec = 30
	}
	if c.Monitor.JitterMaxSec == 0 {
		c.Monitor.JitterMaxSec = 60
	}
	if c.Monitor.ProbeTimeoutSec == 0 {
		c.Monitor.ProbeTimeoutSec = 30
	}
	if c.Monitor.ProbeDelaySec == 0 {
		c.Monitor.ProbeDelaySec = 2
	}
	if c.Monitor.FreshnessSec == 0 {
		c.Monitor.FreshnessSec = 300
	}
	if c.Monitor.Classifier == "" {
		c.Monitor.Classifier = "keyword"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	switch c.Monitor.Classifier {
	case "keyword", "redirect":
	default:
		errs = append(errs, fmt.Sprintf("monitor.classifier must be keyword or redirect, got %q", c.Monitor.Classifier))
	}
	if c.Monitor.InitialDelaySec < 0 {
		errs = append(errs, "monitor.initial_delay_sec must not be negative")
	}
	if c.Monitor.ProbeTimeoutSec < 0 {
		errs = append(errs, "monitor.probe_timeout_sec must not be negative")
	}
	if c.Monitor.ProbeDelaySec < 0 {
		errs = append(errs, "monitor.probe_delay_sec must not be negative")
	}
	if c.Discord.BotToken != "" && c.Discord.ChannelID == "" {
		errs = append(errs, "discord.channel_id is required when discord.bot_token is set")
	}
	if c.Slack.BotToken != "" && c.Slack.ChannelID == "" {
		errs = append(errs, "slack.channel_id is required when slack.bot_token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
