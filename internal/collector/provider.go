// Package collector is the indicator provider: it fetches bars from a market data
// source, caches them per timeframe and computes typed indicator readings.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"SignalSentinel/internal/cache"
	"SignalSentinel/internal/calculator"
	"SignalSentinel/internal/model"
)

// ErrUnavailable reports that an indicator cannot be produced this cycle
// (fetch failure, timeout, or not enough bars yet).
var ErrUnavailable = errors.New("indicator data unavailable")

// Options tunes a Provider.
type Options struct {
	Timeout   time.Duration // per call
	BarTTL    time.Duration
	Lookback  int     // bars fetched per series
	RatePerS  float64 // provider requests per second, 0 disables pacing
	RateBurst int
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.BarTTL <= 0 {
		o.BarTTL = time.Minute
	}
	if o.Lookback <= 0 {
		o.Lookback = 300
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 1
	}
}

// Provider serves prices and indicators for strategies and the monitor.
type Provider struct {
	fetcher Fetcher
	cache   cache.Store
	limiter *rate.Limiter
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

// NewProvider wires a fetcher to a bar cache. A nil store disables caching.
func NewProvider(f Fetcher, store cache.Store, opts Options, log *zap.Logger) *Provider {
	opts.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provider{fetcher: f, cache: store, opts: opts, log: log, now: time.Now}
	if opts.RatePerS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RatePerS), opts.RateBurst)
	}
	return p
}

// Source names the underlying fetcher.
func (p *Provider) Source() string { return p.fetcher.Name() }

func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
}

func (p *Provider) pace(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Price returns the latest quote.
func (p *Provider) Price(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	if err := p.pace(ctx); err != nil {
		return 0, unavailable("price", err)
	}
	price, err := p.fetcher.FetchPrice(ctx, symbol)
	if err != nil {
		return 0, unavailable("price", err)
	}
	if price <= 0 {
		return 0, unavailable("price", fmt.Errorf("non-positive quote %v", price))
	}
	return price, nil
}

func (p *Provider) bars(ctx context.Context, symbol string, tf model.Timeframe) ([]model.OHLCV, error) {
	key := cache.BarKey(symbol, tf)
	now := p.now()
	if p.cache != nil {
		e, ok, err := cache.GetEntry(ctx, p.cache, key, now)
		if err != nil {
			p.log.Warn("bar cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return e.Data, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	bars, err := p.fetcher.FetchBars(ctx, symbol, tf, p.opts.Lookback)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, calculator.ErrInsufficientData
	}
	if p.cache != nil {
		if err := cache.PutEntry(ctx, p.cache, key, bars, now, p.opts.BarTTL); err != nil {
			p.log.Warn("bar cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return bars, nil
}

// Candles returns the most recent n bars, oldest first.
func (p *Provider) Candles(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.OHLCV, error) {
	bars, err := p.bars(ctx, symbol, tf)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("%s candles", tf), err)
	}
	if n > 0 {
		if len(bars) < n {
			return nil, unavailable(fmt.Sprintf("%s candles", tf), calculator.ErrInsufficientData)
		}
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func (p *Provider) series(ctx context.Context, name, symbol string, tf model.Timeframe) ([]model.OHLCV, error) {
	bars, err := p.bars(ctx, symbol, tf)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("%s %s", tf, name), err)
	}
	return bars, nil
}

func (p *Provider) RSI(ctx context.Context, symbol string, tf model.Timeframe, period int) (float64, error) {
	bars, err := p.series(ctx, "rsi", symbol, tf)
	if err != nil {
		return 0, err
	}
	v, err := calculator.RSI(bars, period)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("%s rsi", tf), err)
	}
	return v, nil
}

func (p *Provider) EMA(ctx context.Context, symbol string, tf model.Timeframe, period int) (float64, error) {
	bars, err := p.series(ctx, "ema", symbol, tf)
	if err != nil {
		return 0, err
	}
	v, err := calculator.EMA(calculator.Closes(bars), period)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("%s ema%d", tf, period), err)
	}
	return v, nil
}

func (p *Provider) ATR(ctx context.Context, symbol string, tf model.Timeframe, period int) (float64, error) {
	bars, err := p.series(ctx, "atr", symbol, tf)
	if err != nil {
		return 0, err
	}
	v, err := calculator.ATR(bars, period)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("%s atr", tf), err)
	}
	return v, nil
}

func (p *Provider) MACD(ctx context.Context, symbol string, tf model.Timeframe, fast, slow, signal int) (calculator.MACDResult, error) {
	bars, err := p.series(ctx, "macd", symbol, tf)
	if err != nil {
		return calculator.MACDResult{}, err
	}
	v, err := calculator.MACD(bars, fast, slow, signal)
	if err != nil {
		return calculator.MACDResult{}, unavailable(fmt.Sprintf("%s macd", tf), err)
	}
	return v, nil
}

func (p *Provider) ADX(ctx context.Context, symbol string, tf model.Timeframe, period int) (calculator.ADXResult, error) {
	bars, err := p.series(ctx, "adx", symbol, tf)
	if err != nil {
		return calculator.ADXResult{}, err
	}
	v, err := calculator.ADX(bars, period)
	if err != nil {
		return calculator.ADXResult{}, unavailable(fmt.Sprintf("%s adx", tf), err)
	}
	return v, nil
}

func (p *Provider) Bollinger(ctx context.Context, symbol string, tf model.Timeframe, period int, mult float64) (calculator.Bands, error) {
	bars, err := p.series(ctx, "bollinger", symbol, tf)
	if err != nil {
		return calculator.Bands{}, err
	}
	v, err := calculator.Bollinger(bars, period, mult)
	if err != nil {
		return calculator.Bands{}, unavailable(fmt.Sprintf("%s bollinger", tf), err)
	}
	return v, nil
}

func (p *Provider) Stochastic(ctx context.Context, symbol string, tf model.Timeframe, period, smooth, d int) (calculator.StochasticResult, error) {
	bars, err := p.series(ctx, "stochastic", symbol, tf)
	if err != nil {
		return calculator.StochasticResult{}, err
	}
	v, err := calculator.Stochastic(bars, period, smooth, d)
	if err != nil {
		return calculator.StochasticResult{}, unavailable(fmt.Sprintf("%s stochastic", tf), err)
	}
	return v, nil
}
