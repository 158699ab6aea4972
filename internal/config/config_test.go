package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  name: flightcheck_prod
  user: monitor

monitor:
  schedule: "*/10 * * * *"
  initial_delay_sec: 15
  jitter_max_sec: 30
  probe_timeout_sec: 20
  probe_delay_sec: 1
  freshness_sec: 600
  classifier: redirect

discord:
  bot_token: token-abc
  channel_id: "123456789"

slack:
  bot_token: xoxb-xyz
  channel_id: C042ABC

dashboard:
  port: 9090
`

const minimalYAML = `
discord:
  bot_token: token-abc
  channel_id: "123456789"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "10.0.0.5" {
		t.Errorf("Database.Host = %q, want 10.0.0.5", cfg.Database.Host)
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("Database.Port = %d, want 3307", cfg.Database.Port)
	}
	if cfg.Monitor.Schedule != "*/10 * * * *" {
		t.Errorf("Monitor.Schedule = %q, want */10 * * * *", cfg.Monitor.Schedule)
	}
	if cfg.Monitor.ProbeTimeout() != 20*time.Second {
		t.Errorf("ProbeTimeout() = %v, want 20s", cfg.Monitor.ProbeTimeout())
	}
	if cfg.Monitor.Classifier != "redirect" {
		t.Errorf("Monitor.Classifier = %q, want redirect", cfg.Monitor.Classifier)
	}
	if cfg.Discord.ChannelID != "123456789" {
		t.Errorf("Discord.ChannelID = %q, want 123456789", cfg.Discord.ChannelID)
	}
	if cfg.Slack.ChannelID != "C042ABC" {
		t.Errorf("Slack.ChannelID = %q, want C042ABC", cfg.Slack.ChannelID)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", cfg.Dashboard.Port)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != "flightcheck.db" {
		t.Errorf("Database.Path = %q, want flightcheck.db", cfg.Database.Path)
	}
	if cfg.Monitor.Schedule != "*/5 * * * *" {
		t.Errorf("Monitor.Schedule = %q, want */5 * * * *", cfg.Monitor.Schedule)
	}
	if cfg.Monitor.InitialDelay() != 30*time.Second {
		t.Errorf("InitialDelay() = %v, want 30s", cfg.Monitor.InitialDelay())
	}
	if cfg.Monitor.JitterMax() != 60*time.Second {
		t.Errorf("JitterMax() = %v, want 60s", cfg.Monitor.JitterMax())
	}
	if cfg.Monitor.ProbeDelay() != 2*time.Second {
		t.Errorf("ProbeDelay() = %v, want 2s", cfg.Monitor.ProbeDelay())
	}
	if cfg.Monitor.Freshness() != 5*time.Minute {
		t.Errorf("Freshness() = %v, want 5m", cfg.Monitor.Freshness())
	}
	if cfg.Monitor.Classifier != "keyword" {
		t.Errorf("Monitor.Classifier = %q, want keyword", cfg.Monitor.Classifier)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
}

func TestParse_InvalidDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "database.driver") {
		t.Errorf("error = %v, want mention of database.driver", err)
	}
}

func TestParse_InvalidClassifier(t *testing.T) {
	_, err := Parse([]byte("monitor:\n  classifier: body\n"))
	if err == nil {
		t.Fatal("expected error for unknown classifier")
	}
	if !strings.Contains(err.Error(), "monitor.classifier") {
		t.Errorf("error = %v, want mention of monitor.classifier", err)
	}
}

func TestParse_DiscordChannelRequired(t *testing.T) {
	_, err := Parse([]byte("discord:\n  bot_token: tok\n"))
	if err == nil {
		t.Fatal("expected error for missing discord channel")
	}
	if !strings.Contains(err.Error(), "discord.channel_id") {
		t.Errorf("error = %v, want mention of discord.channel_id", err)
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("database: ["))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flightcheck.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Name != "flightcheck_prod" {
		t.Errorf("Database.Name = %q, want flightcheck_prod", cfg.Database.Name)
	}
}
