package calculator

import (
	"math"
	"time"

	"SignalSentinel/internal/model"
)

// HighLow scans the most recent `lookback` bars and returns the extreme high and low.
// A lookback <= 0 scans every bar.
func HighLow(bars []model.OHLCV, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, ErrInsufficientData
	}
	n := len(bars)
	start := 0
	if lookback > 0 {
		if n < lookback {
			return 0, 0, ErrInsufficientData
		}
		start = n - lookback
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// SessionRange returns the high and low of bars opening in [startHour, endHour) UTC on the given day.
func SessionRange(bars []model.OHLCV, day time.Time, startHour, endHour int) (high, low float64, err error) {
	y, m, d := day.UTC().Date()
	from := time.Date(y, m, d, startHour, 0, 0, 0, time.UTC)
	to := time.Date(y, m, d, endHour, 0, 0, 0, time.UTC)

	var in []model.OHLCV
	for _, b := range bars {
		t := b.Time.UTC()
		if !t.Before(from) && t.Before(to) {
			in = append(in, b)
		}
	}
	return HighLow(in, 0)
}
