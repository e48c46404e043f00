// Package engine runs the signal decision loop: for each tenant, resolve the
// active strategy, apply guardrails and open at most one signal.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
	"SignalSentinel/internal/strategy"
)

// Resolver maps a strategy id to its implementation, falling back to a default for unknown ids.
type Resolver interface {
	Resolve(id string) strategy.Strategy
}

// Selector returns a tenant's active strategy id.
type Selector interface {
	Active(ctx context.Context, tenantID string) (string, error)
}

// Opener persists and announces a proposal; see lifecycle.Manager.Open for the
// errors it returns.
type Opener interface {
	Open(ctx context.Context, tenantID, chatID string, p *model.Proposal) (*model.Signal, error)
}

type OpenReader interface {
	GetOpenSignal(ctx context.Context, tenantID string) (*model.Signal, error)
}

// Alerts renders operator alerts.
type Alerts interface {
	ManualIntervention(tenantID string, err error) string
}

// Deps wires an Engine. Transport and Alerts are optional; without them a halt
// is only logged.
type Deps struct {
	Tenants    []config.Tenant
	Strategies Resolver
	Selector   Selector
	Signals    OpenReader
	Lifecycle  Opener
	Transport  lifecycle.Transport
	Alerts     Alerts
}

const alertTimeout = 15 * time.Second

// Engine evaluates tenants independently. A tenant whose signal was delivered
// but could not be recorded is halted until the process restarts.
type Engine struct {
	deps Deps
	log  *zap.Logger

	mu     sync.Mutex
	halted map[string]error
}

func New(deps Deps, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{deps: deps, log: log.Named("engine"), halted: make(map[string]error)}
}

// Tick evaluates every tenant once. Only manual-intervention failures are returned.
func (e *Engine) Tick(ctx context.Context) error {
	var errs []error
	for _, t := range e.deps.Tenants {
		if ctx.Err() != nil {
			break
		}
		if err := e.RunTenant(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Halted returns the error that halted the tenant, or nil.
func (e *Engine) Halted(tenantID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted[tenantID]
}

// RunTenant runs one decision pass for t.
func (e *Engine) RunTenant(ctx context.Context, t config.Tenant) error {
	log := e.log.With(zap.String("tenant", t.ID))
	if e.Halted(t.ID) != nil {
		log.Debug("tenant halted, skipping")
		return nil
	}

	open, err := e.deps.Signals.GetOpenSignal(ctx, t.ID)
	if err != nil {
		log.Warn("open signal lookup failed", zap.Error(err))
		return nil
	}
	if open != nil {
		log.Debug("signal already open", zap.String("signal", open.ID))
		return nil
	}

	id, err := e.deps.Selector.Active(ctx, t.ID)
	if err != nil {
		log.Warn("active strategy lookup failed", zap.Error(err))
		return nil
	}
	strat := e.deps.Strategies.Resolve(id)
	log = log.With(zap.String("strategy", strat.ID()))
	strat.LoadConfig(ctx, t.ID)

	if ok, reason := strat.CheckGuardrails(ctx); !ok {
		log.Info("guardrail blocked", zap.String("reason", reason))
		return nil
	}

	p, err := strat.CheckForSignals(ctx, strat.Timeframe())
	if err != nil {
		if errors.Is(err, collector.ErrUnavailable) {
			log.Warn("indicators unavailable, skipping", zap.Error(err))
		} else {
			log.Error("strategy evaluation failed", zap.Error(err))
		}
		return nil
	}
	if p == nil {
		log.Debug("no setup")
		return nil
	}
	if err := p.Validate(); err != nil {
		log.Error("strategy produced an invalid proposal", zap.Error(err))
		return nil
	}

	sig, err := e.deps.Lifecycle.Open(ctx, t.ID, t.ChatID, p)
	var ghost *lifecycle.GhostWriteError
	switch {
	case err == nil:
		log.Info("signal published", zap.String("signal", sig.ID), zap.String("direction", string(sig.Direction)))
		return nil
	case errors.Is(err, store.ErrOpenSignalExists):
		log.Info("lost the race to another worker")
		return nil
	case errors.As(err, &ghost):
		e.halt(ctx, t, err)
		return err
	default:
		log.Warn("signal not published", zap.Error(err))
		return nil
	}
}

func (e *Engine) halt(ctx context.Context, t config.Tenant, err error) {
	e.mu.Lock()
	e.halted[t.ID] = err
	e.mu.Unlock()
	e.log.Error("tenant halted", zap.String("tenant", t.ID), zap.Bool("manual_intervention", true), zap.Error(err))

	chat := t.AdminChatID
	if chat == "" {
		chat = t.ChatID
	}
	if e.deps.Transport == nil || e.deps.Alerts == nil {
		return
	}
	// The alert goes out even when the tick is being cancelled.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if _, derr := e.deps.Transport.Deliver(actx, e.deps.Alerts.ManualIntervention(t.ID, err), chat); derr != nil {
		e.log.Error("admin alert failed", zap.String("tenant", t.ID), zap.Error(derr))
	}
}
