// Package scheduler runs the signal and monitor loops on cron schedules and
// answers chat commands.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"SignalSentinel/internal/botswitch"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

// Ticker is one pass of a periodic loop.
type Ticker interface {
	Tick(ctx context.Context) error
}

type Switcher interface {
	Active(ctx context.Context, tenantID string) (string, error)
	Selection(ctx context.Context, tenantID string) (model.BotSelection, error)
	SetActive(ctx context.Context, tenantID, strategyID string) (store.SwitchOutcome, error)
	CancelQueued(ctx context.Context, tenantID string) error
}

// SignalReader reads a tenant's live and past signals.
type SignalReader interface {
	GetOpenSignal(ctx context.Context, tenantID string) (*model.Signal, error)
	RecentSignals(ctx context.Context, tenantID string, limit int) ([]*model.Signal, error)
}

type Catalog interface {
	IDs() []string
}

// Replies renders command answers.
type Replies interface {
	Status(sel model.BotSelection, sig *model.Signal) string
	Strategies(ids []string, active string) string
	History(sigs []*model.Signal) string
}

// historyLimit is how many signals /history lists.
const historyLimit = 10

// TenantLookup resolves the tenant a chat belongs to.
type TenantLookup func(chatID string) (config.Tenant, bool)

type Deps struct {
	Signals  Ticker
	Monitor  Ticker
	Switcher Switcher
	Open     SignalReader
	Catalog  Catalog
	Replies  Replies
	Tenants  TenantLookup
}

// Scheduler manages the cron loops.
type Scheduler struct {
	cron *cron.Cron
	deps Deps
	ctx  context.Context
	log  *zap.Logger
}

func New(ctx context.Context, deps Deps, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		deps: deps,
		ctx:  ctx,
		log:  log,
	}
}

// RegisterAll registers the signal loop and the monitor loop.
func (s *Scheduler) RegisterAll(signalCron, monitorCron string) error {
	if _, err := s.cron.AddFunc(signalCron, s.RunSignalsNow); err != nil {
		return fmt.Errorf("register signal loop: %w", err)
	}
	if _, err := s.cron.AddFunc(monitorCron, s.RunMonitorNow); err != nil {
		return fmt.Errorf("register monitor loop: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunSignalsNow runs one signal decision pass (also used for RUN_ON_START).
func (s *Scheduler) RunSignalsNow() {
	if err := s.deps.Signals.Tick(s.ctx); err != nil {
		s.log.Error("signal loop", zap.Error(err))
	}
}

func (s *Scheduler) RunMonitorNow() {
	if err := s.deps.Monitor.Tick(s.ctx); err != nil {
		s.log.Error("monitor loop", zap.Error(err))
	}
}

// HandleCommand processes a chat command and returns a reply. Chats that are not
// linked to a tenant get no reply.
func (s *Scheduler) HandleCommand(ctx context.Context, chatID, text string) string {
	t, ok := s.deps.Tenants(chatID)
	if !ok {
		s.log.Debug("command from unknown chat", zap.String("chat", chatID))
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")

	switch cmd {
	case "/status":
		if _, err := s.deps.Switcher.Active(ctx, t.ID); err != nil {
			return s.failed("status", t, err)
		}
		sel, err := s.deps.Switcher.Selection(ctx, t.ID)
		if err != nil {
			return s.failed("status", t, err)
		}
		sig, err := s.deps.Open.GetOpenSignal(ctx, t.ID)
		if err != nil {
			return s.failed("status", t, err)
		}
		return s.deps.Replies.Status(sel, sig)
	case "/strategies":
		active, err := s.deps.Switcher.Active(ctx, t.ID)
		if err != nil {
			return s.failed("strategies", t, err)
		}
		return s.deps.Replies.Strategies(s.deps.Catalog.IDs(), active)
	case "/history":
		sigs, err := s.deps.Open.RecentSignals(ctx, t.ID, historyLimit)
		if err != nil {
			return s.failed("history", t, err)
		}
		return s.deps.Replies.History(sigs)
	case "/switch":
		if len(fields) < 2 {
			return "Usage: /switch &lt;strategy&gt;"
		}
		return s.switchStrategy(ctx, t, fields[1])
	case "/cancelswitch":
		if err := s.deps.Switcher.CancelQueued(ctx, t.ID); err != nil {
			return s.failed("cancel switch", t, err)
		}
		return "Queued switch cancelled."
	default:
		return "Commands:\n• /status\n• /history\n• /strategies\n• /switch &lt;strategy&gt;\n• /cancelswitch"
	}
}

func (s *Scheduler) switchStrategy(ctx context.Context, t config.Tenant, id string) string {
	out, err := s.deps.Switcher.SetActive(ctx, t.ID, id)
	switch {
	case errors.Is(err, botswitch.ErrUnknownStrategy):
		return fmt.Sprintf("Unknown strategy %q. See /strategies.", id)
	case err != nil:
		return s.failed("switch", t, err)
	case out.Deferred:
		return fmt.Sprintf("Switch to %s queued. %s stays active until the open signal closes.", id, out.Selection.Active)
	default:
		return fmt.Sprintf("Active strategy is now %s.", id)
	}
}

func (s *Scheduler) failed(op string, t config.Tenant, err error) string {
	s.log.Error("command failed", zap.String("command", op), zap.String("tenant", t.ID), zap.Error(err))
	return "⚠️ Command failed, try again later."
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
