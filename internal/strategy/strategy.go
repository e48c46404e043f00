// Package strategy holds the closed set of signal strategies, their per-tenant
// configuration and the shared risk geometry.
package strategy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/guardrail"
	"SignalSentinel/internal/model"
)

// Strategy is one trading style. Instances are cheap and built per cycle by the Registry.
type Strategy interface {
	ID() string
	Name() string
	Timeframe() model.Timeframe
	SessionBased() bool

	// LoadConfig pulls the tenant's current configuration; failures fall back to defaults.
	LoadConfig(ctx context.Context, tenantID string)
	// CheckGuardrails reports whether a new signal may be opened; reason is set when not.
	CheckGuardrails(ctx context.Context) (bool, string)
	// CheckForSignals returns a proposal, or nil when there is nothing to do.
	// A missing indicator returns an error wrapping collector.ErrUnavailable.
	CheckForSignals(ctx context.Context, tf model.Timeframe) (*model.Proposal, error)
	// Snapshot re-derives the indicator basket recorded at entry.
	Snapshot(ctx context.Context, dir model.Direction) (*model.Snapshot, error)
	// BreakevenTrigger is the fraction of the distance to TP1 at which the stop moves to entry.
	BreakevenTrigger() float64
}

// Indicators is the provider surface strategies read from.
type Indicators interface {
	Price(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.OHLCV, error)
	RSI(ctx context.Context, symbol string, tf model.Timeframe, period int) (float64, error)
	EMA(ctx context.Context, symbol string, tf model.Timeframe, period int) (float64, error)
	ATR(ctx context.Context, symbol string, tf model.Timeframe, period int) (float64, error)
	MACD(ctx context.Context, symbol string, tf model.Timeframe, fast, slow, signal int) (calculator.MACDResult, error)
	ADX(ctx context.Context, symbol string, tf model.Timeframe, period int) (calculator.ADXResult, error)
	Bollinger(ctx context.Context, symbol string, tf model.Timeframe, period int, mult float64) (calculator.Bands, error)
	Stochastic(ctx context.Context, symbol string, tf model.Timeframe, period, smooth, d int) (calculator.StochasticResult, error)
}

// ConfigSource serves flat per-tenant strategy configuration.
type ConfigSource interface {
	StrategyConfig(ctx context.Context, tenantID, strategyID string) (map[string]string, error)
}

// Instrument describes the traded symbol.
type Instrument struct {
	Symbol   string
	PipSize  float64
	Decimals int32
}

// Deps are the collaborators every strategy is built with.
type Deps struct {
	Indicators Indicators
	Config     ConfigSource
	State      guardrail.StateSource
	Instrument Instrument
	Log        *zap.Logger
	Now        func() time.Time
}

var errNoDirection = errors.New("no directional bias")

// base implements the configuration and guardrail halves of Strategy.
type base struct {
	id           string
	name         string
	tf           model.Timeframe
	sessionBased bool
	defaults     map[string]float64

	deps   Deps
	tenant string
	params Params
}

func newBase(deps Deps, id, name string, tf model.Timeframe, sessionBased bool, defaults map[string]float64) base {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return base{
		id:           id,
		name:         name,
		tf:           tf,
		sessionBased: sessionBased,
		defaults:     defaults,
		deps:         deps,
		params:       newParams(defaults),
	}
}

func (b *base) ID() string                 { return b.id }
func (b *base) Name() string               { return b.name }
func (b *base) Timeframe() model.Timeframe { return b.tf }
func (b *base) SessionBased() bool         { return b.sessionBased }
func (b *base) BreakevenTrigger() float64  { return b.params.F(KeyBreakevenTrigger) }

// Params exposes the loaded configuration.
func (b *base) Params() Params { return b.params }

func (b *base) log() *zap.Logger {
	return b.deps.Log.With(zap.String("strategy", b.id), zap.String("tenant", b.tenant))
}

func (b *base) LoadConfig(ctx context.Context, tenantID string) {
	b.tenant = tenantID
	b.params = loadParams(ctx, b.deps.Config, tenantID, b.id, b.defaults, b.log())
}

func (b *base) rules() guardrail.Rules {
	p := b.params
	return guardrail.Rules{
		SessionEnabled:   p.B(KeySessionEnabled),
		SessionStartHour: p.I(KeySessionStartHour),
		SessionEndHour:   p.I(KeySessionEndHour),
		DailyLossCapPips: p.F(KeyDailyLossCapPips),
		LossCooldown:     p.Minutes(KeyLossCooldownMinutes),
		SessionBased:     b.sessionBased,
		MaxSignalsPerDay: p.I(KeyMaxSignalsPerDay),
		SignalCooldown:   p.Minutes(KeySignalCooldownMinutes),
	}
}

func (b *base) CheckGuardrails(ctx context.Context) (bool, string) {
	if b.deps.State == nil {
		return false, "guardrail state unavailable"
	}
	st, err := guardrail.LoadState(ctx, b.deps.State, b.tenant, b.id, b.deps.Now())
	if err != nil {
		b.log().Warn("guardrail state load failed", zap.Error(err))
		return false, "guardrail state unavailable: " + err.Error()
	}
	d := guardrail.Evaluate(st, b.rules())
	return d.Allowed, d.Reason
}

func (b *base) symbol() string { return b.deps.Instrument.Symbol }

func (b *base) timeframe(tf model.Timeframe) model.Timeframe {
	if tf == "" {
		return b.tf
	}
	return tf
}

// directionFrom maps a sign to a direction; zero has no bias.
func directionFrom(v float64) (model.Direction, error) {
	switch {
	case v > 0:
		return model.Buy, nil
	case v < 0:
		return model.Sell, nil
	}
	return "", errNoDirection
}
