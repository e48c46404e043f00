package strategy

import (
	"context"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/model"
)

// momentumBasket is the indicator set shared by the trend-following momentum strategies.
type momentumBasket struct {
	Price   float64
	EMAFast float64
	EMASlow float64 // zero when the strategy does not use a slow filter
	RSI     float64
	Stoch   calculator.StochasticResult
	MACD    calculator.MACDResult
	ADX     calculator.ADXResult
	ATR     float64
	Bands   calculator.Bands
}

// fetchMomentum reads every indicator or fails on the first missing one.
func (b *base) fetchMomentum(ctx context.Context, tf model.Timeframe, withSlow bool) (*momentumBasket, error) {
	ind := b.deps.Indicators
	sym := b.symbol()
	p := b.params
	var (
		m   momentumBasket
		err error
	)
	if m.Price, err = ind.Price(ctx, sym); err != nil {
		return nil, err
	}
	if m.EMAFast, err = ind.EMA(ctx, sym, tf, p.I(KeyEMAFast)); err != nil {
		return nil, err
	}
	if withSlow {
		if m.EMASlow, err = ind.EMA(ctx, sym, tf, p.I(KeyEMASlow)); err != nil {
			return nil, err
		}
	}
	if m.RSI, err = ind.RSI(ctx, sym, tf, p.I(KeyRSIPeriod)); err != nil {
		return nil, err
	}
	if m.Stoch, err = ind.Stochastic(ctx, sym, tf, 14, 3, 3); err != nil {
		return nil, err
	}
	if m.MACD, err = ind.MACD(ctx, sym, tf, 12, 26, 9); err != nil {
		return nil, err
	}
	if m.ADX, err = ind.ADX(ctx, sym, tf, p.I(KeyADXPeriod)); err != nil {
		return nil, err
	}
	if m.ATR, err = ind.ATR(ctx, sym, tf, p.I(KeyATRPeriod)); err != nil {
		return nil, err
	}
	if m.Bands, err = ind.Bollinger(ctx, sym, tf, 20, 2); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *momentumBasket) snapshot(withSlow bool) *model.Snapshot {
	keys := []string{model.SnapRSI, model.SnapMACDHist, model.SnapStochK, model.SnapADX,
		model.SnapPriceVsEMA, model.SnapBBPos, model.SnapATR}
	if withSlow {
		keys = append(keys, model.SnapEMASpread)
	}
	s := model.NewSnapshot(keys...)
	_ = s.Set(model.SnapRSI, m.RSI)
	_ = s.Set(model.SnapMACDHist, m.MACD.Histogram)
	_ = s.Set(model.SnapStochK, m.Stoch.K)
	_ = s.Set(model.SnapADX, m.ADX.ADX)
	_ = s.Set(model.SnapPriceVsEMA, m.Price-m.EMAFast)
	_ = s.Set(model.SnapBBPos, bandPosition(m.Price, m.Bands))
	_ = s.Set(model.SnapATR, m.ATR)
	if withSlow {
		_ = s.Set(model.SnapEMASpread, m.EMAFast-m.EMASlow)
	}
	return s
}

func (b *base) momentumConfirmations(dir model.Direction, m *momentumBasket) []confirmation {
	p := b.params
	return []confirmation{
		confirmRSI(dir, m.RSI, p.F(KeyRSIBuyMax), p.F(KeyRSISellMin)),
		confirmStochastic(dir, m.Stoch),
		confirmMACD(dir, m.MACD),
		confirmADX(dir, m.ADX, p.F(KeyADXMin)),
		confirmBands(dir, m.Price, m.Bands),
	}
}
