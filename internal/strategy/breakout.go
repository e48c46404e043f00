package strategy

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/model"
)

const (
	KeyRangeStartHour    = "range_start_hour"
	KeyRangeEndHour      = "range_end_hour"
	KeyBreakoutBufferATR = "breakout_buffer_atr"
	KeyMinRangeATR       = "min_range_atr"
	KeyMaxRangeATR       = "max_range_atr"
)

// SessionBreakout trades the London break of the Asian range on M15.
// The stop sits at the range midpoint; targets are R multiples.
type SessionBreakout struct {
	base
}

func NewSessionBreakout(deps Deps) Strategy {
	return &SessionBreakout{base: newBase(deps, "session_breakout", "Session Breakout", model.M15, true, withDefaults(map[string]float64{
		KeySessionEnabled:        1,
		KeySessionStartHour:      7,
		KeySessionEndHour:        11,
		KeyMaxSignalsPerDay:      2,
		KeySignalCooldownMinutes: 120,
		KeyRangeStartHour:        0,
		KeyRangeEndHour:          7,
		KeyBreakoutBufferATR:     0.1,
		KeyMinRangeATR:           1.0,
		KeyMaxRangeATR:           6.0,
		KeyTP1Mult:               1.0,
		KeyTP2Mult:               2.0,
		KeyTP3Mult:               3.0,
		KeyTP1Alloc:              50,
		KeyTP2Alloc:              30,
		KeyTP3Alloc:              20,
		KeyBreakevenTrigger:      0.5,
	}))}
}

type breakoutBasket struct {
	Price     float64
	ATR       float64
	RangeHigh float64
	RangeLow  float64
	RSI       float64
	MACD      calculator.MACDResult
	ADX       calculator.ADXResult
}

func (s *SessionBreakout) fetch(ctx context.Context, tf model.Timeframe) (*breakoutBasket, error) {
	ind := s.deps.Indicators
	sym := s.symbol()
	p := s.params
	var (
		k   breakoutBasket
		err error
	)
	if k.Price, err = ind.Price(ctx, sym); err != nil {
		return nil, err
	}
	if k.ATR, err = ind.ATR(ctx, sym, tf, p.I(KeyATRPeriod)); err != nil {
		return nil, err
	}
	// One day of bars covers the range window.
	n := int(24*60/tf.Duration().Minutes()) + 1
	bars, err := ind.Candles(ctx, sym, tf, n)
	if err != nil {
		return nil, err
	}
	k.RangeHigh, k.RangeLow, err = calculator.SessionRange(bars, s.deps.Now(), p.I(KeyRangeStartHour), p.I(KeyRangeEndHour))
	if err != nil {
		return nil, fmt.Errorf("asian range: %w", err)
	}
	if k.RSI, err = ind.RSI(ctx, sym, tf, p.I(KeyRSIPeriod)); err != nil {
		return nil, err
	}
	if k.MACD, err = ind.MACD(ctx, sym, tf, 12, 26, 9); err != nil {
		return nil, err
	}
	if k.ADX, err = ind.ADX(ctx, sym, tf, p.I(KeyADXPeriod)); err != nil {
		return nil, err
	}
	return &k, nil
}

func (k *breakoutBasket) snapshot() *model.Snapshot {
	snap := model.NewSnapshot(model.SnapRSI, model.SnapMACDHist, model.SnapADX,
		model.SnapATR, model.SnapRangeHigh, model.SnapRangeLow)
	_ = snap.Set(model.SnapRSI, k.RSI)
	_ = snap.Set(model.SnapMACDHist, k.MACD.Histogram)
	_ = snap.Set(model.SnapADX, k.ADX.ADX)
	_ = snap.Set(model.SnapATR, k.ATR)
	_ = snap.Set(model.SnapRangeHigh, k.RangeHigh)
	_ = snap.Set(model.SnapRangeLow, k.RangeLow)
	return snap
}

func (s *SessionBreakout) CheckForSignals(ctx context.Context, tf model.Timeframe) (*model.Proposal, error) {
	tf = s.timeframe(tf)
	k, err := s.fetch(ctx, tf)
	if err != nil {
		return nil, err
	}
	p := s.params

	width := k.RangeHigh - k.RangeLow
	if width < p.F(KeyMinRangeATR)*k.ATR || width > p.F(KeyMaxRangeATR)*k.ATR {
		s.log().Debug("range width out of bounds", zap.Float64("width", width), zap.Float64("atr", k.ATR))
		return nil, nil
	}

	buffer := p.F(KeyBreakoutBufferATR) * k.ATR
	var dir model.Direction
	switch {
	case k.Price > k.RangeHigh+buffer:
		dir = model.Buy
	case k.Price < k.RangeLow-buffer:
		dir = model.Sell
	default:
		return nil, nil
	}

	mid := (k.RangeHigh + k.RangeLow) / 2
	risk := math.Max(math.Abs(k.Price-mid), s.minStop())
	g := Geometry{
		Direction: dir,
		Entry:     k.Price,
		StopLoss:  k.Price - dir.Sign()*risk,
		Targets:   RTargets(dir, k.Price, risk, s.tpMults()),
		Allocs:    s.tpAllocs(),
	}
	rationale := fmt.Sprintf("broke Asian range %.2f-%.2f (width %.2f, ATR %.2f)", k.RangeLow, k.RangeHigh, width, k.ATR)
	prop, err := s.proposal(g, tf, k.snapshot(), rationale)
	if err != nil {
		s.log().Info("discarding ill-formed proposal", zap.Error(err))
		return nil, nil
	}
	return prop, nil
}

func (s *SessionBreakout) Snapshot(ctx context.Context, _ model.Direction) (*model.Snapshot, error) {
	k, err := s.fetch(ctx, s.tf)
	if err != nil {
		return nil, err
	}
	return k.snapshot(), nil
}
