package collector

import (
	"context"
	"sync"
	"time"

	"SignalSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu    sync.Mutex
	Price float64
	Bars  map[model.Timeframe][]model.OHLCV
	Err   error
	Delay time.Duration

	calls int
}

func (m *MockFetcher) Name() string { return "mock" }

// SetPrice changes the quoted price.
func (m *MockFetcher) SetPrice(p float64) {
	m.mu.Lock()
	m.Price = p
	m.mu.Unlock()
}

// Calls returns how many fetches reached the mock.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFetcher) wait(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	d := m.Delay
	err := m.Err
	m.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MockFetcher) FetchBars(ctx context.Context, _ string, tf model.Timeframe, limit int) ([]model.OHLCV, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if bars, ok := m.Bars[tf]; ok {
		return bars, nil
	}
	return generateMockBars(m.Price, tf, limit), nil
}

func (m *MockFetcher) FetchPrice(ctx context.Context, _ string) (float64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Price, nil
}

func generateMockBars(basePrice float64, tf model.Timeframe, count int) []model.OHLCV {
	step := tf.Duration()
	if step == 0 {
		step = time.Hour
	}
	end := time.Now().UTC().Truncate(step)
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.0002)
		bars[i] = model.OHLCV{
			Time:   end.Add(-time.Duration(count-i) * step),
			Open:   p * 0.9998,
			High:   p * 1.0008,
			Low:    p * 0.9992,
			Close:  p,
			Volume: 1000,
		}
	}
	return bars
}
