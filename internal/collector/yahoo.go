package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"SignalSentinel/internal/model"
)

// YahooFetcher reads bars from the public Yahoo Finance chart endpoint. It needs no API key.
type YahooFetcher struct {
	client    *resty.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher maps XAUUSD-style symbols to Yahoo tickers.
func NewYahooFetcher(proxyURL string, timeout time.Duration) *YahooFetcher {
	c := resty.New().
		SetBaseURL("https://query1.finance.yahoo.com").
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0")
	if proxyURL != "" {
		c.SetProxy(proxyURL)
	}
	return &YahooFetcher{
		client: c,
		SymbolMap: map[string]string{
			"XAUUSD": "GC=F",
			"GOLD":   "GC=F",
			"EURUSD": "EURUSD=X",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart mirrors the subset of the chart response we read.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func deref(v []*float64, i int) float64 {
	x, _ := at(v, i)
	return x
}

// at reports whether the series has a value at i.
func at(v []*float64, i int) (float64, bool) {
	if i >= len(v) || v[i] == nil {
		return 0, false
	}
	return *v[i], true
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
	var chart yahooChart
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("symbol", f.yahooSymbol(symbol)).
		SetQueryParams(map[string]string{"interval": interval, "range": rng}).
		ForceContentType("application/json").
		SetResult(&chart).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}
	return &chart, nil
}

func (f *YahooFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	var interval, rng string
	switch tf {
	case model.M15:
		interval, rng = "15m", "1mo"
	case model.H1, model.H4:
		interval, rng = "60m", "6mo"
	case model.D1:
		interval, rng = "1d", "2y"
	default:
		return nil, fmt.Errorf("yahoo: unsupported timeframe %s", tf)
	}
	chart, err := f.fetchChart(ctx, symbol, interval, rng)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote series")
	}
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, okO := at(quote.Open, i)
		h, okH := at(quote.High, i)
		l, okL := at(quote.Low, i)
		c, okC := at(quote.Close, i)
		if !okO || !okH || !okL || !okC {
			continue // market closed or bar still forming
		}
		bars = append(bars, model.OHLCV{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: deref(quote.Volume, i),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	if tf == model.H4 {
		bars = aggregateBars(bars, 4*time.Hour)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (f *YahooFetcher) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	chart, err := f.fetchChart(ctx, symbol, "1m", "1d")
	if err != nil {
		return 0, err
	}
	p := chart.Chart.Result[0].Meta.RegularMarketPrice
	if p <= 0 {
		return 0, fmt.Errorf("yahoo: no price data")
	}
	return p, nil
}
