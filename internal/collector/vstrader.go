package collector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"SignalSentinel/internal/model"
)

// VsTraderFetcher implements Fetcher using the vstrader REST API.
type VsTraderFetcher struct {
	client *resty.Client
}

// NewVsTraderFetcher creates a new fetcher with optional proxy support.
func NewVsTraderFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *VsTraderFetcher {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	if proxyURL != "" {
		c.SetProxy(proxyURL)
	}
	return &VsTraderFetcher{client: c}
}

func (f *VsTraderFetcher) Name() string { return "vstrader" }

// vsBar is the expected JSON shape from the vstrader API.
type vsBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

var vsIntervals = map[model.Timeframe]string{
	model.M15: "15m",
	model.H1:  "1h",
	model.H4:  "4h",
	model.D1:  "1d",
}

func (f *VsTraderFetcher) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	interval, ok := vsIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("vstrader: unsupported timeframe %s", tf)
	}
	bars, err := f.fetchBars(ctx, symbol, interval, limit)
	if err == nil || tf != model.H4 {
		return bars, err
	}
	// Fallback: build H4 from H1.
	hourly, hErr := f.fetchBars(ctx, symbol, vsIntervals[model.H1], limit*4)
	if hErr != nil {
		return nil, fmt.Errorf("h4 fetch failed: %w; h1 fallback also failed: %w", err, hErr)
	}
	return aggregateBars(hourly, 4*time.Hour), nil
}

func (f *VsTraderFetcher) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	var result struct {
		Price float64 `json:"price"`
	}
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		ForceContentType("application/json").
		SetResult(&result).
		Get("/api/v1/quote")
	if err != nil {
		return 0, fmt.Errorf("fetch current price: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("fetch current price: status %d", resp.StatusCode())
	}
	if result.Price <= 0 {
		return 0, fmt.Errorf("fetch current price: empty quote")
	}
	return result.Price, nil
}

func (f *VsTraderFetcher) fetchBars(ctx context.Context, symbol, interval string, limit int) ([]model.OHLCV, error) {
	var vsBars []vsBar
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		ForceContentType("application/json").
		SetResult(&vsBars).
		Get("/api/v1/bars")
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	bars := make([]model.OHLCV, len(vsBars))
	for i, vb := range vsBars {
		bars[i] = model.OHLCV{
			Time:   time.Unix(vb.Timestamp, 0).UTC(),
			Open:   vb.Open,
			High:   vb.High,
			Low:    vb.Low,
			Close:  vb.Close,
			Volume: vb.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
