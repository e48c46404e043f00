package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
telegram:
  bot_token: "123:abc"
data_source:
  provider: vstrader
  base_url: "https://api.example.test"
  timeout: 5s
instrument:
  symbol: XAUUSD
  pip_size: 0.1
tenants:
  - id: t1
    chat_id: "-100111"
    admin_chat_id: "42"
    strategy: conservative
monitor:
  max_hold: 12h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.DataSource.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.DataSource.Timeout)
	}
	if cfg.Monitor.MaxHold != 12*time.Hour || cfg.Monitor.ExpireAfter != 48*time.Hour {
		t.Errorf("monitor = %+v", cfg.Monitor)
	}
	if cfg.Schedule.SignalCron == "" || cfg.Schedule.MonitorCron == "" {
		t.Error("cron defaults not applied")
	}
	tn, ok := cfg.TenantByChat("42")
	if !ok || tn.ID != "t1" {
		t.Errorf("TenantByChat(admin) = %+v, %v", tn, ok)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SQLITE_PATH", "/tmp/override.db")
	t.Setenv("REDIS_DB", "3")
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.SQLitePath != "/tmp/override.db" {
		t.Errorf("sqlite path = %q", cfg.Database.SQLitePath)
	}
	if cfg.Cache.RedisDB != 3 {
		t.Errorf("redis db = %d", cfg.Cache.RedisDB)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }},
		{"no tenants", func(c *Config) { c.Tenants = nil }},
		{"duplicate tenant", func(c *Config) { c.Tenants = append(c.Tenants, c.Tenants[0]) }},
		{"bad provider", func(c *Config) { c.DataSource.Provider = "ftp" }},
		{"expire before timeout", func(c *Config) { c.Monitor.ExpireAfter = time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
