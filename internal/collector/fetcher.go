package collector

import (
	"context"
	"time"

	"SignalSentinel/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.OHLCV, error)
	FetchPrice(ctx context.Context, symbol string) (float64, error)
	Name() string
}

// aggregateBars folds consecutive bars into buckets of `span`, aligned to UTC midnight.
// Used to build H4 from H1 when the source has no native H4 series.
func aggregateBars(src []model.OHLCV, span time.Duration) []model.OHLCV {
	if len(src) == 0 || span <= 0 {
		return nil
	}
	var out []model.OHLCV
	var cur model.OHLCV
	var curKey time.Time
	started := false

	for _, b := range src {
		key := b.Time.UTC().Truncate(span)
		if !started || !key.Equal(curKey) {
			if started {
				out = append(out, cur)
			}
			cur = model.OHLCV{Time: key, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			curKey = key
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if started {
		out = append(out, cur)
	}
	return out
}
