// Package guardrail decides whether a new signal may be opened right now.
package guardrail

import (
	"context"
	"fmt"
	"math"
	"time"

	"SignalSentinel/internal/model"
)

// Rules are the risk and timing limits a strategy evaluates against.
// Zero values disable the corresponding check.
type Rules struct {
	SessionEnabled   bool
	SessionStartHour int // UTC, inclusive
	SessionEndHour   int // UTC, exclusive; may wrap past midnight
	DailyLossCapPips float64
	LossCooldown     time.Duration

	SessionBased     bool
	MaxSignalsPerDay int
	SignalCooldown   time.Duration
}

// Decision is the outcome of Evaluate. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func block(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Evaluate runs the checks in a fixed order and returns the first failure.
// It has no side effects and depends only on its arguments.
func Evaluate(st model.GuardrailState, r Rules) Decision {
	now := st.Now.UTC()

	if r.SessionEnabled && !inSession(now.Hour(), r.SessionStartHour, r.SessionEndHour) {
		return block("outside session window %02d:00-%02d:00 UTC (now %02d:%02d)",
			r.SessionStartHour, r.SessionEndHour, now.Hour(), now.Minute())
	}

	if r.DailyLossCapPips > 0 && st.DailyPnLPips <= -r.DailyLossCapPips {
		return block("daily loss cap reached: %.1f pips today (cap %.1f)", st.DailyPnLPips, r.DailyLossCapPips)
	}

	if r.LossCooldown > 0 && st.LastClosed != nil && st.LastClosed.Status == model.StatusLost {
		if left := r.LossCooldown - now.Sub(st.LastClosed.ClosedAt); left > 0 {
			return block("post-loss cooldown: ~%dmin remaining", ceilMinutes(left))
		}
	}

	if !r.SessionBased {
		return allow()
	}

	if r.MaxSignalsPerDay > 0 && st.SignalsToday >= r.MaxSignalsPerDay {
		return block("daily signal limit reached: %d/%d", st.SignalsToday, r.MaxSignalsPerDay)
	}

	if r.SignalCooldown > 0 && !st.LastSignalAt.IsZero() {
		if left := r.SignalCooldown - now.Sub(st.LastSignalAt); left > 0 {
			return block("strategy cooldown: ~%dmin remaining", ceilMinutes(left))
		}
	}
	return allow()
}

func inSession(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

// StartOfDay returns 00:00 UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StateSource is the persisted trading state the guardrail reads.
type StateSource interface {
	DailyRealizedPnL(ctx context.Context, tenantID string, since time.Time) (float64, error)
	LastClosedSignal(ctx context.Context, tenantID string) (*model.ClosedSignal, error)
	StrategyActivity(ctx context.Context, tenantID, strategyID string, since time.Time) (int, time.Time, error)
}

// LoadState assembles the GuardrailState of a tenant/strategy at now.
func LoadState(ctx context.Context, src StateSource, tenantID, strategyID string, now time.Time) (model.GuardrailState, error) {
	st := model.GuardrailState{Now: now}
	day := StartOfDay(now)

	pnl, err := src.DailyRealizedPnL(ctx, tenantID, day)
	if err != nil {
		return st, fmt.Errorf("daily pnl: %w", err)
	}
	st.DailyPnLPips = pnl

	last, err := src.LastClosedSignal(ctx, tenantID)
	if err != nil {
		return st, fmt.Errorf("last closed signal: %w", err)
	}
	st.LastClosed = last

	n, lastAt, err := src.StrategyActivity(ctx, tenantID, strategyID, day)
	if err != nil {
		return st, fmt.Errorf("strategy activity: %w", err)
	}
	st.SignalsToday = n
	st.LastSignalAt = lastAt
	return st, nil
}
