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
	KeyEMAZone        = "ema_zone"
	KeyZoneATR        = "zone_atr"
	KeyRSIPullbackLow = "rsi_pullback_low"
	KeyRSIPullbackHi  = "rsi_pullback_high"
	KeySwingLookback  = "swing_lookback"
	KeyWickLookback   = "wick_lookback"
	KeySLBufferATR    = "sl_buffer_atr"
)

// TrendPullback takes the H4 trend and enters on an H1 pullback into the EMA21
// zone confirmed by a trigger candle. TP3 targets the recent wick extreme.
type TrendPullback struct {
	base
}

func NewTrendPullback(deps Deps) Strategy {
	return &TrendPullback{base: newBase(deps, "trend_pullback", "Trend Pullback", model.H1, false, withDefaults(map[string]float64{
		KeyEMAZone:          21,
		KeyZoneATR:          0.5,
		KeyRSIPullbackLow:   40,
		KeyRSIPullbackHi:    60,
		KeySwingLookback:    10,
		KeyWickLookback:     50,
		KeySLBufferATR:      0.2,
		KeyADXMin:           20,
		KeyTP1Mult:          1.0,
		KeyTP2Mult:          2.0,
		KeyTP1Alloc:         50,
		KeyTP2Alloc:         30,
		KeyTP3Alloc:         20,
		KeyBreakevenTrigger: 0.6,
	}))}
}

type pullbackBasket struct {
	Price    float64
	H4Fast   float64
	H4Slow   float64
	H4ADX    calculator.ADXResult
	H1Zone   float64
	H1RSI    float64
	H1ATR    float64
	Bars     []model.OHLCV // H1, oldest first, len == wick lookback
	Trigger  model.OHLCV
	Previous model.OHLCV
}

func (s *TrendPullback) fetch(ctx context.Context, trigger model.Timeframe) (*pullbackBasket, error) {
	ind := s.deps.Indicators
	sym := s.symbol()
	p := s.params
	var (
		k   pullbackBasket
		err error
	)
	if k.Price, err = ind.Price(ctx, sym); err != nil {
		return nil, err
	}
	if k.H4Fast, err = ind.EMA(ctx, sym, model.H4, p.I(KeyEMAFast)); err != nil {
		return nil, err
	}
	if k.H4Slow, err = ind.EMA(ctx, sym, model.H4, p.I(KeyEMASlow)); err != nil {
		return nil, err
	}
	if k.H4ADX, err = ind.ADX(ctx, sym, model.H4, p.I(KeyADXPeriod)); err != nil {
		return nil, err
	}
	if k.H1Zone, err = ind.EMA(ctx, sym, trigger, p.I(KeyEMAZone)); err != nil {
		return nil, err
	}
	if k.H1RSI, err = ind.RSI(ctx, sym, trigger, p.I(KeyRSIPeriod)); err != nil {
		return nil, err
	}
	if k.H1ATR, err = ind.ATR(ctx, sym, trigger, p.I(KeyATRPeriod)); err != nil {
		return nil, err
	}
	if k.Bars, err = ind.Candles(ctx, sym, trigger, p.I(KeyWickLookback)); err != nil {
		return nil, err
	}
	if len(k.Bars) < 2 {
		return nil, fmt.Errorf("trigger candles: %w", calculator.ErrInsufficientData)
	}
	k.Trigger = k.Bars[len(k.Bars)-1]
	k.Previous = k.Bars[len(k.Bars)-2]
	return &k, nil
}

func (k *pullbackBasket) snapshot() *model.Snapshot {
	snap := model.NewSnapshot(model.SnapRSI, model.SnapADX, model.SnapEMASpread, model.SnapPriceVsEMA, model.SnapATR)
	_ = snap.Set(model.SnapRSI, k.H1RSI)
	_ = snap.Set(model.SnapADX, k.H4ADX.ADX)
	_ = snap.Set(model.SnapEMASpread, k.H4Fast-k.H4Slow)
	_ = snap.Set(model.SnapPriceVsEMA, k.Price-k.H1Zone)
	_ = snap.Set(model.SnapATR, k.H1ATR)
	return snap
}

// trend reads the H4 bias: EMAs stacked with price and the dominant DI agreeing.
func (s *TrendPullback) trend(k *pullbackBasket) (model.Direction, bool) {
	if k.H4ADX.ADX < s.params.F(KeyADXMin) {
		return "", false
	}
	switch {
	case k.Price > k.H4Fast && k.H4Fast > k.H4Slow && k.H4ADX.PlusDI > k.H4ADX.MinusDI:
		return model.Buy, true
	case k.Price < k.H4Fast && k.H4Fast < k.H4Slow && k.H4ADX.MinusDI > k.H4ADX.PlusDI:
		return model.Sell, true
	}
	return "", false
}

// pulledBack reports whether the previous H1 bar reached into the EMA zone and the
// trigger bar closed back on the trend side beyond the previous bar's extreme.
func (s *TrendPullback) pulledBack(dir model.Direction, k *pullbackBasket) bool {
	zone := s.params.F(KeyZoneATR) * k.H1ATR
	if dir == model.Buy {
		touched := k.Previous.Low <= k.H1Zone+zone
		return touched && k.Trigger.Bullish() && k.Trigger.Close > k.Previous.High && k.Trigger.Close > k.H1Zone
	}
	touched := k.Previous.High >= k.H1Zone-zone
	return touched && k.Trigger.Bearish() && k.Trigger.Close < k.Previous.Low && k.Trigger.Close < k.H1Zone
}

func (s *TrendPullback) CheckForSignals(ctx context.Context, tf model.Timeframe) (*model.Proposal, error) {
	tf = s.timeframe(tf)
	k, err := s.fetch(ctx, tf)
	if err != nil {
		return nil, err
	}
	p := s.params

	dir, ok := s.trend(k)
	if !ok {
		return nil, nil
	}
	if k.H1RSI < p.F(KeyRSIPullbackLow) || k.H1RSI > p.F(KeyRSIPullbackHi) {
		return nil, nil
	}
	if !s.pulledBack(dir, k) {
		return nil, nil
	}

	swingN := p.I(KeySwingLookback)
	if swingN > len(k.Bars) {
		swingN = len(k.Bars)
	}
	swingHigh, swingLow, err := calculator.HighLow(k.Bars, swingN)
	if err != nil {
		return nil, err
	}
	buffer := p.F(KeySLBufferATR) * k.H1ATR
	swing := swingLow - buffer
	if dir == model.Sell {
		swing = swingHigh + buffer
	}
	risk := math.Max(math.Abs(k.Price-swing), s.minStop())

	targets := RTargets(dir, k.Price, risk, []float64{p.F(KeyTP1Mult), p.F(KeyTP2Mult)})
	allocs := []int{60, 40}
	wickHigh, wickLow, _ := calculator.HighLow(k.Bars, 0)
	wick := wickHigh
	if dir == model.Sell {
		wick = wickLow
	}
	if len(targets) == 2 && (wick-targets[1])*dir.Sign() > 0 {
		targets = append(targets, wick)
		allocs = s.tpAllocs()
	}

	g := Geometry{
		Direction: dir,
		Entry:     k.Price,
		StopLoss:  k.Price - dir.Sign()*risk,
		Targets:   targets,
		Allocs:    allocs,
	}
	rationale := fmt.Sprintf("H4 trend %s (ADX %.1f), H1 pullback to EMA%d %.2f, RSI %.1f, trigger close %.2f",
		dir, k.H4ADX.ADX, p.I(KeyEMAZone), k.H1Zone, k.H1RSI, k.Trigger.Close)
	prop, err := s.proposal(g, tf, k.snapshot(), rationale)
	if err != nil {
		s.log().Info("discarding ill-formed proposal", zap.Error(err))
		return nil, nil
	}
	return prop, nil
}

func (s *TrendPullback) Snapshot(ctx context.Context, _ model.Direction) (*model.Snapshot, error) {
	k, err := s.fetch(ctx, s.tf)
	if err != nil {
		return nil, err
	}
	return k.snapshot(), nil
}
