package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/model"
)

type fakeIndicators struct {
	price   float64
	ema     map[string]float64 // "<tf>/<period>"
	rsi     map[model.Timeframe]float64
	atr     map[model.Timeframe]float64
	adx     map[model.Timeframe]calculator.ADXResult
	macd    calculator.MACDResult
	stoch   calculator.StochasticResult
	bands   calculator.Bands
	candles map[model.Timeframe][]model.OHLCV
	missing map[string]bool
}

func emaKey(tf model.Timeframe, period int) string { return fmt.Sprintf("%s/%d", tf, period) }

func (f *fakeIndicators) gone(name string) error {
	if f.missing[name] {
		return fmt.Errorf("%w: %s", collector.ErrUnavailable, name)
	}
	return nil
}

func (f *fakeIndicators) Price(context.Context, string) (float64, error) {
	return f.price, f.gone("price")
}

func (f *fakeIndicators) Candles(_ context.Context, _ string, tf model.Timeframe, n int) ([]model.OHLCV, error) {
	if err := f.gone("candles"); err != nil {
		return nil, err
	}
	bars := f.candles[tf]
	if len(bars) < n {
		return nil, fmt.Errorf("%w: candles", collector.ErrUnavailable)
	}
	return bars[len(bars)-n:], nil
}

func (f *fakeIndicators) RSI(_ context.Context, _ string, tf model.Timeframe, _ int) (float64, error) {
	return f.rsi[tf], f.gone("rsi")
}

func (f *fakeIndicators) EMA(_ context.Context, _ string, tf model.Timeframe, period int) (float64, error) {
	v, ok := f.ema[emaKey(tf, period)]
	if !ok {
		return 0, fmt.Errorf("%w: ema %s", collector.ErrUnavailable, emaKey(tf, period))
	}
	return v, f.gone("ema")
}

func (f *fakeIndicators) ATR(_ context.Context, _ string, tf model.Timeframe, _ int) (float64, error) {
	return f.atr[tf], f.gone("atr")
}

func (f *fakeIndicators) MACD(context.Context, string, model.Timeframe, int, int, int) (calculator.MACDResult, error) {
	return f.macd, f.gone("macd")
}

func (f *fakeIndicators) ADX(_ context.Context, _ string, tf model.Timeframe, _ int) (calculator.ADXResult, error) {
	return f.adx[tf], f.gone("adx")
}

func (f *fakeIndicators) Bollinger(context.Context, string, model.Timeframe, int, float64) (calculator.Bands, error) {
	return f.bands, f.gone("bollinger")
}

func (f *fakeIndicators) Stochastic(context.Context, string, model.Timeframe, int, int, int) (calculator.StochasticResult, error) {
	return f.stoch, f.gone("stochastic")
}

type fakeConfig struct {
	values map[string]string
	err    error
	reads  int
}

func (c *fakeConfig) StrategyConfig(context.Context, string, string) (map[string]string, error) {
	c.reads++
	return c.values, c.err
}

type fakeState struct {
	pnl      float64
	last     *model.ClosedSignal
	today    int
	lastSent time.Time
	err      error
}

func (s *fakeState) DailyRealizedPnL(context.Context, string, time.Time) (float64, error) {
	return s.pnl, s.err
}

func (s *fakeState) LastClosedSignal(context.Context, string) (*model.ClosedSignal, error) {
	return s.last, nil
}

func (s *fakeState) StrategyActivity(context.Context, string, string, time.Time) (int, time.Time, error) {
	return s.today, s.lastSent, nil
}

var errBoom = errors.New("boom")

var gold = Instrument{Symbol: "XAUUSD", PipSize: 0.1, Decimals: 2}
