package strategy

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Configuration keys understood by every strategy.
const (
	KeySessionEnabled        = "session_enabled"
	KeySessionStartHour      = "session_start_hour"
	KeySessionEndHour        = "session_end_hour"
	KeyDailyLossCapPips      = "daily_loss_cap_pips"
	KeyLossCooldownMinutes   = "loss_cooldown_minutes"
	KeyMaxSignalsPerDay      = "max_signals_per_day"
	KeySignalCooldownMinutes = "signal_cooldown_minutes"

	KeyATRPeriod        = "atr_period"
	KeySLATRMult        = "sl_atr_mult"
	KeyMinSLPips        = "min_sl_pips"
	KeyTP1Mult          = "tp1_mult"
	KeyTP2Mult          = "tp2_mult"
	KeyTP3Mult          = "tp3_mult"
	KeyTP1Alloc         = "tp1_alloc"
	KeyTP2Alloc         = "tp2_alloc"
	KeyTP3Alloc         = "tp3_alloc"
	KeyBreakevenTrigger = "breakeven_trigger"

	KeyRSIPeriod        = "rsi_period"
	KeyRSIBuyMax        = "rsi_buy_max"
	KeyRSISellMin       = "rsi_sell_min"
	KeyADXPeriod        = "adx_period"
	KeyADXMin           = "adx_min"
	KeyEMAFast          = "ema_fast"
	KeyEMASlow          = "ema_slow"
	KeyMinConfirmations = "min_confirmations"
)

// commonDefaults apply to every strategy unless overridden by its own defaults.
var commonDefaults = map[string]float64{
	KeySessionEnabled:        0,
	KeySessionStartHour:      0,
	KeySessionEndHour:        24,
	KeyDailyLossCapPips:      50,
	KeyLossCooldownMinutes:   30,
	KeyMaxSignalsPerDay:      0,
	KeySignalCooldownMinutes: 0,

	KeyATRPeriod:        14,
	KeySLATRMult:        1.0,
	KeyMinSLPips:        30,
	KeyTP1Mult:          1.0,
	KeyTP2Mult:          2.0,
	KeyTP3Mult:          3.0,
	KeyTP1Alloc:         50,
	KeyTP2Alloc:         30,
	KeyTP3Alloc:         20,
	KeyBreakevenTrigger: 0.7,

	KeyRSIPeriod:  14,
	KeyRSIBuyMax:  45,
	KeyRSISellMin: 55,
	KeyADXPeriod:  14,
	KeyADXMin:     20,
	KeyEMAFast:    50,
	KeyEMASlow:    200,
}

func withDefaults(own map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(commonDefaults)+len(own))
	for k, v := range commonDefaults {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}

// Params is a strategy's resolved numeric configuration.
type Params struct {
	values map[string]float64
}

func newParams(defaults map[string]float64) Params {
	vals := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		vals[k] = v
	}
	return Params{values: vals}
}

func (p Params) F(key string) float64 { return p.values[key] }
func (p Params) I(key string) int     { return int(p.values[key]) }
func (p Params) B(key string) bool    { return p.values[key] != 0 }

// Minutes reads a value expressed in minutes.
func (p Params) Minutes(key string) time.Duration {
	return time.Duration(p.values[key] * float64(time.Minute))
}

// Keys lists the known keys in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is a known configuration key.
func (p Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func parseValue(raw string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "on":
		return 1, nil
	case "false", "no", "off":
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

// loadParams overlays stored overrides on defaults. The source is read on every
// call so operator edits apply on the next cycle. Read errors, unknown keys and
// malformed values keep the defaults.
func loadParams(ctx context.Context, src ConfigSource, tenantID, strategyID string, defaults map[string]float64, log *zap.Logger) Params {
	p := newParams(defaults)
	if src == nil {
		return p
	}
	overrides, err := src.StrategyConfig(ctx, tenantID, strategyID)
	if err != nil {
		log.Warn("strategy config load failed, using defaults", zap.Error(err))
		return p
	}
	for k, raw := range overrides {
		if _, known := defaults[k]; !known {
			log.Debug("ignoring unknown strategy config key", zap.String("key", k))
			continue
		}
		v, err := parseValue(raw)
		if err != nil {
			log.Warn("invalid strategy config value, keeping default",
				zap.String("key", k), zap.String("value", raw), zap.Error(err))
			continue
		}
		p.values[k] = v
	}
	return p
}

// ValidateOverride checks a single key/value against a strategy's known keys.
func ValidateOverride(s Strategy, key, value string) error {
	b, ok := s.(interface{ Params() Params })
	if !ok {
		return nil
	}
	if !b.Params().Has(key) {
		return &UnknownKeyError{Strategy: s.ID(), Key: key}
	}
	_, err := parseValue(value)
	return err
}

// UnknownKeyError reports a configuration key a strategy does not understand.
type UnknownKeyError struct {
	Strategy string
	Key      string
}

func (e *UnknownKeyError) Error() string {
	return "strategy " + e.Strategy + " has no config key " + strconv.Quote(e.Key)
}
