package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		APIBase  string `yaml:"api_base"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider      string        `yaml:"provider"` // vstrader | yahoo | mock
		BaseURL       string        `yaml:"base_url"`
		APIKey        string        `yaml:"api_key"`
		Timeout       time.Duration `yaml:"timeout"`
		RatePerSecond float64       `yaml:"rate_per_second"`
		Lookback      int           `yaml:"lookback"`
	} `yaml:"data_source"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Schedule   struct {
		SignalCron  string `yaml:"signal_cron"`
		MonitorCron string `yaml:"monitor_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	Tenants []Tenant      `yaml:"tenants"`
	Proxy   string        `yaml:"proxy"`
}

// InstrumentConfig describes the single traded instrument.
type InstrumentConfig struct {
	Symbol        string  `yaml:"symbol"`
	PipSize       float64 `yaml:"pip_size"`
	PriceDecimals int32   `yaml:"price_decimals"`
}

// CacheConfig selects the bar cache backend. An empty RedisAddr keeps bars in memory.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	BarTTL        time.Duration `yaml:"bar_ttl"`
}

type LogConfig struct {
	Level             string `yaml:"level"`
	Encoding          string `yaml:"encoding"` // json | console
	Development       bool   `yaml:"development"`
	DisableCaller     bool   `yaml:"disable_caller"`
	DisableStacktrace bool   `yaml:"disable_stacktrace"`
}

// MonitorConfig tunes the price/guidance loop.
type MonitorConfig struct {
	StagnantAfter   time.Duration `yaml:"stagnant_after"`   // revalidation starts after this hold time
	RevalidateEvery time.Duration `yaml:"revalidate_every"` // minimum gap between revalidations
	MaxHold         time.Duration `yaml:"max_hold"`         // one-time timeout notice
	ExpireAfter     time.Duration `yaml:"expire_after"`     // signal closes as expired
	DraftTTL        time.Duration `yaml:"draft_ttl"`        // drafts older than this are failed
}

// Tenant is one isolated subscriber group with its own signal channel.
type Tenant struct {
	ID          string `yaml:"id"`
	ChatID      string `yaml:"chat_id"`
	AdminChatID string `yaml:"admin_chat_id"`
	Strategy    string `yaml:"strategy"` // initial active strategy
}

// Load reads .env, then the YAML file, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
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

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		c.DataSource.Provider = v
	}
	if v := os.Getenv("VSTRADER_BASE_URL"); v != "" {
		c.DataSource.BaseURL = v
	}
	if v := os.Getenv("VSTRADER_API_KEY"); v != "" {
		c.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		c.Instrument.Symbol = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.RedisDB = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CRON_SIGNAL"); v != "" {
		c.Schedule.SignalCron = v
	}
	if v := os.Getenv("CRON_MONITOR"); v != "" {
		c.Schedule.MonitorCron = v
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "vstrader"
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 10 * time.Second
	}
	if c.DataSource.Lookback == 0 {
		c.DataSource.Lookback = 300
	}
	if c.Instrument.Symbol == "" {
		c.Instrument.Symbol = "XAUUSD"
	}
	if c.Instrument.PipSize == 0 {
		c.Instrument.PipSize = 0.1
	}
	if c.Instrument.PriceDecimals == 0 {
		c.Instrument.PriceDecimals = 2
	}
	if c.Schedule.SignalCron == "" {
		c.Schedule.SignalCron = "5 */15 * * * *"
	}
	if c.Schedule.MonitorCron == "" {
		c.Schedule.MonitorCron = "*/20 * * * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/signal_sentinel.db"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "sigsentinel:"
	}
	if c.Cache.BarTTL == 0 {
		c.Cache.BarTTL = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if c.Monitor.StagnantAfter == 0 {
		c.Monitor.StagnantAfter = 4 * time.Hour
	}
	if c.Monitor.RevalidateEvery == 0 {
		c.Monitor.RevalidateEvery = time.Hour
	}
	if c.Monitor.MaxHold == 0 {
		c.Monitor.MaxHold = 24 * time.Hour
	}
	if c.Monitor.ExpireAfter == 0 {
		c.Monitor.ExpireAfter = 48 * time.Hour
	}
	if c.Monitor.DraftTTL == 0 {
		c.Monitor.DraftTTL = 5 * time.Minute
	}
}

// Tenant returns the tenant with the given id.
func (c *Config) Tenant(id string) (Tenant, bool) {
	for _, t := range c.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return Tenant{}, false
}

// TenantByChat resolves a Telegram chat id (signal or admin chat) to its tenant.
func (c *Config) TenantByChat(chatID string) (Tenant, bool) {
	for _, t := range c.Tenants {
		if t.ChatID == chatID || (t.AdminChatID != "" && t.AdminChatID == chatID) {
			return t, true
		}
	}
	return Tenant{}, false
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	switch c.DataSource.Provider {
	case "vstrader":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for vstrader")
		}
	case "yahoo", "mock":
	default:
		return fmt.Errorf("data_source.provider %q not supported", c.DataSource.Provider)
	}
	if c.Instrument.PipSize <= 0 {
		return fmt.Errorf("instrument.pip_size must be positive")
	}
	if len(c.Tenants) == 0 {
		return fmt.Errorf("at least one tenant is required")
	}
	seen := make(map[string]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if t.ID == "" {
			return fmt.Errorf("tenants[%d].id is required", i)
		}
		if t.ChatID == "" {
			return fmt.Errorf("tenants[%d].chat_id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate tenant id %q", t.ID)
		}
		seen[t.ID] = true
	}
	if c.Monitor.ExpireAfter < c.Monitor.MaxHold {
		return fmt.Errorf("monitor.expire_after must not be shorter than monitor.max_hold")
	}
	return nil
}
