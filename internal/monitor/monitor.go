// Package monitor drives open signals from live prices: activation, targets,
// stops, breakeven, guidance zones, revalidation and expiry.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/milestone"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/revalidation"
	"SignalSentinel/internal/strategy"
)

type Store interface {
	ListOpenSignals(ctx context.Context) ([]*model.Signal, error)
	ReapStaleDrafts(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Prices interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

type Lifecycle interface {
	Activate(ctx context.Context, sig *model.Signal) (bool, error)
	TakeProfit(ctx context.Context, sig *model.Signal, level int, price float64) (bool, error)
	Breakeven(ctx context.Context, sig *model.Signal, price float64) (bool, error)
	Close(ctx context.Context, sig *model.Signal, exit lifecycle.Exit, price float64) (*model.CloseResult, error)
	Guidance(ctx context.Context, sig *model.Signal, typ model.NarrativeEventType, price float64, snap *model.Snapshot, text string)
}

type Resolver interface {
	Resolve(id string) strategy.Strategy
}

type Revalidator interface {
	Check(ctx context.Context, sig *model.Signal, s revalidation.Snapshotter, now time.Time) (revalidation.Outcome, error)
}

// Messages renders the guidance the monitor sends.
type Messages interface {
	TakeProfit(sig *model.Signal, level int, price float64) string
	Breakeven(sig *model.Signal, price float64) string
	Zone(sig *model.Signal, kind model.ZoneKind, zone int, price float64) string
	Thesis(sig *model.Signal, status model.ThesisStatus, notes string) string
	Timeout(sig *model.Signal, price float64, held time.Duration) string
	Closed(sig *model.Signal, res model.CloseResult, exit lifecycle.Exit) string
}

// ChatResolver maps a tenant to its signal channel.
type ChatResolver func(tenantID string) (string, bool)

// Deps are the collaborators a Monitor drives. Promoter may be nil; every other
// field is required.
type Deps struct {
	Store       Store
	Prices      Prices
	Lifecycle   Lifecycle
	Milestones  *milestone.Coordinator
	Revalidator Revalidator
	Strategies  Resolver
	Transport   lifecycle.Transport
	Messages    Messages
	Chats       ChatResolver
	Promoter    lifecycle.Promoter // told about each reaped draft
}

// Options tunes the time based transitions of a pass.
type Options struct {
	ExpireAfter time.Duration // zero disables expiry
	DraftTTL    time.Duration // zero disables draft reaping
	Now         func() time.Time
}

// Monitor applies price observations to live signals. It holds no per-signal
// state between passes; concurrent callers are serialized by the store's
// conditional writes.
type Monitor struct {
	deps Deps
	opts Options
	log  *zap.Logger
}

func New(deps Deps, opts Options, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{deps: deps, opts: opts, log: log.Named("monitor")}
}

// Tick runs one monitoring pass over every live signal. Per-signal failures are
// logged and do not stop the pass.
func (m *Monitor) Tick(ctx context.Context) error {
	now := m.opts.Now().UTC()
	if m.opts.DraftTTL > 0 {
		m.reap(ctx, now.Add(-m.opts.DraftTTL))
	}

	sigs, err := m.deps.Store.ListOpenSignals(ctx)
	if err != nil {
		return fmt.Errorf("list open signals: %w", err)
	}
	prices := make(map[string]float64)
	for _, sig := range sigs {
		price, ok := prices[sig.Symbol]
		if !ok {
			price, err = m.deps.Prices.Price(ctx, sig.Symbol)
			if err != nil {
				m.log.Warn("price unavailable, skipping", zap.String("symbol", sig.Symbol), zap.Error(err))
				continue
			}
			prices[sig.Symbol] = price
		}
		if err := m.Process(ctx, sig, price, now); err != nil {
			m.log.Warn("monitor signal", zap.String("signal", sig.ID), zap.String("tenant", sig.TenantID), zap.Error(err))
		}
	}
	return nil
}

// reap fails drafts older than cutoff and lets a queued switch take over their tenants.
func (m *Monitor) reap(ctx context.Context, cutoff time.Time) {
	tenants, err := m.deps.Store.ReapStaleDrafts(ctx, cutoff)
	if err != nil {
		m.log.Warn("reap stale drafts", zap.Error(err))
		return
	}
	if len(tenants) == 0 {
		return
	}
	m.log.Warn("stale drafts marked broadcast_failed", zap.Int("count", len(tenants)))
	if m.deps.Promoter == nil {
		return
	}
	seen := make(map[string]bool, len(tenants))
	for _, tenant := range tenants {
		if seen[tenant] {
			continue
		}
		seen[tenant] = true
		if _, err := m.deps.Promoter.PromoteQueued(ctx, tenant); err != nil {
			m.log.Error("promote queued strategy", zap.String("tenant", tenant), zap.Error(err))
		}
	}
}

// Process applies one price observation to a pending or open signal.
func (m *Monitor) Process(ctx context.Context, sig *model.Signal, price float64, now time.Time) error {
	lc := m.deps.Lifecycle
	if sig.Status == model.StatusPending {
		if _, err := lc.Activate(ctx, sig); err != nil {
			return err
		}
	}

	if sig.StopHit(price) {
		return m.close(ctx, sig, lifecycle.ExitStopLoss, price)
	}

	allHit := sig.TPCount > 0
	for i, tp := range sig.Levels() {
		level := i + 1
		if !tp.Hit && sig.TargetHit(tp.Price, price) {
			won, err := lc.TakeProfit(ctx, sig, level, price)
			if err != nil {
				return err
			}
			if won {
				m.guide(ctx, sig, milestone.TakeProfitKey(level), model.EventTakeProfit, price, nil,
					m.deps.Messages.TakeProfit(sig, level, price))
			}
		}
		if !sig.TakeProfits[i].Hit {
			allHit = false
		}
	}
	if allHit {
		return m.close(ctx, sig, lifecycle.ExitTakeProfit, price)
	}

	if m.opts.ExpireAfter > 0 && !sig.PostedAt.IsZero() && now.Sub(sig.PostedAt) >= m.opts.ExpireAfter {
		return m.close(ctx, sig, lifecycle.ExitExpired, price)
	}

	strat := m.deps.Strategies.Resolve(sig.StrategyID)
	strat.LoadConfig(ctx, sig.TenantID)

	if !sig.BreakevenTriggered {
		if trigger := strat.BreakevenTrigger(); trigger > 0 && sig.Progress(price) >= trigger {
			won, err := lc.Breakeven(ctx, sig, price)
			if err != nil {
				return err
			}
			if won {
				m.guide(ctx, sig, milestone.KeyBreakeven, model.EventGuidance, price, nil,
					m.deps.Messages.Breakeven(sig, price))
			}
		}
	}

	m.zones(ctx, sig, price)

	if m.deps.Revalidator == nil {
		return nil
	}
	out, err := m.deps.Revalidator.Check(ctx, sig, strat, now)
	if out.Transitioned {
		m.guide(ctx, sig, "", model.EventRevalidation, price, out.Snapshot,
			m.deps.Messages.Thesis(sig, out.Status, out.Notes))
	}
	if out.TimedOut {
		m.guide(ctx, sig, milestone.KeyTimeout, model.EventTimeout, price, nil,
			m.deps.Messages.Timeout(sig, price, now.Sub(sig.PostedAt)))
	}
	return err
}

func (m *Monitor) zones(ctx context.Context, sig *model.Signal, price float64) {
	coord := m.deps.Milestones
	if !sig.AnyTPHit() {
		if z := milestone.ZoneFor(sig.Progress(price), milestone.ProgressZones); z > sig.ProgressZone {
			if coord.ClaimZone(ctx, sig, model.ZoneProgress, z) {
				m.guide(ctx, sig, "", model.EventGuidance, price, nil, m.deps.Messages.Zone(sig, model.ZoneProgress, z, price))
			}
		}
	}
	if z := milestone.ZoneFor(sig.Adversity(price), milestone.CautionZones); z > sig.CautionZone {
		if coord.ClaimZone(ctx, sig, model.ZoneCaution, z) {
			m.guide(ctx, sig, "", model.EventGuidance, price, nil, m.deps.Messages.Zone(sig, model.ZoneCaution, z, price))
		}
	}
}

func (m *Monitor) close(ctx context.Context, sig *model.Signal, exit lifecycle.Exit, price float64) error {
	res, err := m.deps.Lifecycle.Close(ctx, sig, exit, price)
	if err != nil || res == nil {
		return err
	}
	if m.deps.Milestones.Claim(ctx, sig.ID, milestone.KeyClosed) {
		m.send(ctx, sig, m.deps.Messages.Closed(sig, *res, exit))
	}
	return nil
}

// guide sends a guidance message and records it. A non-empty key must be claimed first.
func (m *Monitor) guide(ctx context.Context, sig *model.Signal, key string, typ model.NarrativeEventType, price float64, snap *model.Snapshot, text string) {
	if key != "" && !m.deps.Milestones.Claim(ctx, sig.ID, key) {
		return
	}
	if m.send(ctx, sig, text) {
		m.deps.Lifecycle.Guidance(ctx, sig, typ, price, snap, text)
	}
}

func (m *Monitor) send(ctx context.Context, sig *model.Signal, text string) bool {
	chat, ok := m.deps.Chats(sig.TenantID)
	if !ok {
		m.log.Warn("no channel for tenant", zap.String("tenant", sig.TenantID))
		return false
	}
	if _, err := m.deps.Transport.Deliver(ctx, text, chat); err != nil {
		if !errors.Is(err, context.Canceled) {
			m.log.Warn("guidance delivery failed", zap.String("signal", sig.ID), zap.Error(err))
		}
		return false
	}
	return true
}
