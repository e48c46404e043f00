package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SignalSentinel/internal/botswitch"
	"SignalSentinel/internal/cache"
	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/logger"
	"SignalSentinel/internal/milestone"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/store"
	"SignalSentinel/internal/strategy"
)

const telegramTimeout = 15 * time.Second

// app holds the components shared by every subcommand.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	store      *store.Store
	provider   *collector.Provider
	registry   *strategy.Registry
	switches   *botswitch.Queue
	telegram   *notifier.Telegram
	format     notifier.Formatter
	lifecycle  *lifecycle.Manager
	milestones *milestone.Coordinator

	closers []func() error
}

func newApp(cfgPath string, validate bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, format: notifier.Formatter{Decimals: int(cfg.Instrument.PriceDecimals)}}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.Database.SQLitePath, log.Named("store"))
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	fetcher, err := newFetcher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var bars cache.Store
	if cfg.Cache.RedisAddr != "" {
		rs := cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, cfg.Cache.Prefix)
		a.closers = append(a.closers, rs.Close)
		bars = rs
	} else {
		bars = cache.NewMemoryStore()
	}
	a.provider = collector.NewProvider(fetcher, bars, collector.Options{
		Timeout:  cfg.DataSource.Timeout,
		BarTTL:   cfg.Cache.BarTTL,
		Lookback: cfg.DataSource.Lookback,
		RatePerS: cfg.DataSource.RatePerSecond,
	}, log.Named("collector"))
	log.Info("data source ready", zap.String("source", a.provider.Source()), zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	a.registry = strategy.NewRegistry(strategy.Deps{
		Indicators: a.provider,
		Config:     st,
		State:      st,
		Instrument: strategy.Instrument{
			Symbol:   cfg.Instrument.Symbol,
			PipSize:  cfg.Instrument.PipSize,
			Decimals: cfg.Instrument.PriceDecimals,
		},
		Log: log.Named("strategy"),
	})
	a.switches = botswitch.New(st, a.registry, log)
	a.telegram = notifier.NewTelegram(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Proxy, telegramTimeout, log)
	a.milestones = milestone.NewCoordinator(st, log)
	a.lifecycle = lifecycle.New(st, a.telegram, a.format, a.switches, lifecycle.Options{
		PipSize:  cfg.Instrument.PipSize,
		Decimals: cfg.Instrument.PriceDecimals,
	}, log)
	return a, nil
}

func newFetcher(cfg *config.Config) (collector.Fetcher, error) {
	ds := cfg.DataSource
	switch ds.Provider {
	case "vstrader":
		return collector.NewVsTraderFetcher(ds.BaseURL, ds.APIKey, cfg.Proxy, ds.Timeout), nil
	case "yahoo":
		return collector.NewYahooFetcher(cfg.Proxy, ds.Timeout), nil
	case "mock":
		return &collector.MockFetcher{Price: 1}, nil
	}
	return nil, fmt.Errorf("unsupported data source %q", ds.Provider)
}

// chatFor resolves a tenant's signal channel.
func (a *app) chatFor(tenantID string) (string, bool) {
	t, ok := a.cfg.Tenant(tenantID)
	return t.ChatID, ok && t.ChatID != ""
}

func (a *app) tenant(id string) (config.Tenant, error) {
	t, ok := a.cfg.Tenant(id)
	if !ok {
		return config.Tenant{}, fmt.Errorf("tenant %q is not configured", id)
	}
	return t, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
