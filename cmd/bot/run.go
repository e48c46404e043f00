package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"SignalSentinel/internal/engine"
	"SignalSentinel/internal/monitor"
	"SignalSentinel/internal/revalidation"
	"SignalSentinel/internal/scheduler"
)

func newRunCmd(cfgPath *string) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the signal and monitor loops and answer chat commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(*cfgPath, runOnStart || os.Getenv("RUN_ON_START") == "true")
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "evaluate signals immediately instead of waiting for the first cron tick")
	return cmd
}

func run(cfgPath string, runOnStart bool) error {
	a, err := newApp(cfgPath, true)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log
	cfg := a.cfg
	log.Info("SignalSentinel starting", zap.Int("tenants", len(cfg.Tenants)), zap.String("symbol", cfg.Instrument.Symbol))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, t := range cfg.Tenants {
		if err := a.switches.Seed(ctx, t.ID, t.Strategy); err != nil {
			return err
		}
	}

	eng := engine.New(engine.Deps{
		Tenants:    cfg.Tenants,
		Strategies: a.registry,
		Selector:   a.switches,
		Signals:    a.store,
		Lifecycle:  a.lifecycle,
		Transport:  a.telegram,
		Alerts:     a.format,
	}, log)

	mon := monitor.New(monitor.Deps{
		Store:      a.store,
		Prices:     a.provider,
		Lifecycle:  a.lifecycle,
		Milestones: a.milestones,
		Revalidator: revalidation.New(a.store, revalidation.Options{
			StagnantAfter:   cfg.Monitor.StagnantAfter,
			RevalidateEvery: cfg.Monitor.RevalidateEvery,
			MaxHold:         cfg.Monitor.MaxHold,
		}, log),
		Strategies: a.registry,
		Transport:  a.telegram,
		Messages:   a.format,
		Chats:      a.chatFor,
		Promoter:   a.switches,
	}, monitor.Options{
		ExpireAfter: cfg.Monitor.ExpireAfter,
		DraftTTL:    cfg.Monitor.DraftTTL,
	}, log)

	sched := scheduler.New(ctx, scheduler.Deps{
		Signals:  eng,
		Monitor:  mon,
		Switcher: a.switches,
		Open:     a.store,
		Catalog:  a.registry,
		Replies:  a.format,
		Tenants:  cfg.TenantByChat,
	}, log)
	if err := sched.RegisterAll(cfg.Schedule.SignalCron, cfg.Schedule.MonitorCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	go a.telegram.Poll(ctx, sched.HandleCommand)
	log.Info("telegram polling started")

	if runOnStart {
		log.Info("run-on-start enabled, evaluating signals now")
		go sched.RunSignalsNow()
	}

	log.Info("SignalSentinel is running")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	return nil
}
