package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/cache"
	"SignalSentinel/internal/model"
)

func newTestProvider(f Fetcher, store cache.Store, opts Options) *Provider {
	return NewProvider(f, store, opts, zap.NewNop())
}

func TestProvider_CachesBars(t *testing.T) {
	m := &MockFetcher{Price: 2650}
	p := newTestProvider(m, cache.NewMemoryStore(), Options{BarTTL: time.Minute})
	ctx := context.Background()

	if _, err := p.RSI(ctx, "XAUUSD", model.M15, 14); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ATR(ctx, "XAUUSD", model.M15, 14); err != nil {
		t.Fatal(err)
	}
	if got := m.Calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (second read served from cache)", got)
	}
}

func TestProvider_InsufficientBarsIsUnavailable(t *testing.T) {
	m := &MockFetcher{Price: 2650, Bars: map[model.Timeframe][]model.OHLCV{
		model.H1: generateMockBars(2650, model.H1, 5),
	}}
	p := newTestProvider(m, nil, Options{})

	_, err := p.RSI(context.Background(), "XAUUSD", model.H1, 14)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := p.Candles(context.Background(), "XAUUSD", model.H1, 10); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for short candles, got %v", err)
	}
}

func TestProvider_FetchErrorIsUnavailable(t *testing.T) {
	m := &MockFetcher{Err: errors.New("upstream 502")}
	p := newTestProvider(m, nil, Options{})
	if _, err := p.Price(context.Background(), "XAUUSD"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestProvider_Timeout(t *testing.T) {
	m := &MockFetcher{Price: 2650, Delay: time.Second}
	p := newTestProvider(m, nil, Options{Timeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := p.Price(context.Background(), "XAUUSD")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("timeout not honored")
	}
}

func TestAggregateBars_H1ToH4(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var h1 []model.OHLCV
	for i := 0; i < 8; i++ {
		p := 2600 + float64(i)
		h1 = append(h1, model.OHLCV{Time: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: 10})
	}
	h4 := aggregateBars(h1, 4*time.Hour)
	if len(h4) != 2 {
		t.Fatalf("got %d H4 bars, want 2", len(h4))
	}
	b := h4[0]
	if b.Open != 2600 || b.Close != 2604 || b.High != 2605 || b.Low != 2598 || b.Volume != 40 {
		t.Errorf("unexpected first H4 bar %+v", b)
	}
	if !h4[1].Time.Equal(t0.Add(4 * time.Hour)) {
		t.Errorf("second bucket starts at %v", h4[1].Time)
	}
}

func TestVsTraderFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/quote":
			_, _ = w.Write([]byte(`{"price": 2651.25}`))
		case "/api/v1/bars":
			if r.URL.Query().Get("interval") != "15m" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`[
				{"timestamp": 1772438400, "open": 2651, "high": 2653, "low": 2650, "close": 2652, "volume": 5},
				{"timestamp": 1772437500, "open": 2650, "high": 2652, "low": 2649, "close": 2651, "volume": 4}
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := NewVsTraderFetcher(srv.URL, "k", "", 5*time.Second)
	ctx := context.Background()

	price, err := f.FetchPrice(ctx, "XAUUSD")
	if err != nil {
		t.Fatal(err)
	}
	if price != 2651.25 {
		t.Errorf("price = %v", price)
	}
	bars, err := f.FetchBars(ctx, "XAUUSD", model.M15, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || !bars[0].Time.Before(bars[1].Time) {
		t.Fatalf("bars not sorted chronologically: %+v", bars)
	}
	if _, err := f.FetchBars(ctx, "XAUUSD", model.D1, 2); err == nil {
		t.Error("expected error for rejected interval")
	}
}
