package calculator

import (
	"math"

	"SignalSentinel/internal/model"
)

func trueRange(cur, prev model.OHLCV) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR computes the Wilder-smoothed average true range. Requires period+1 bars.
func ATR(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, errPeriod
	}
	if len(bars) < period+1 {
		return 0, ErrInsufficientData
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(bars[i], bars[i-1])
	}
	atr /= float64(period)
	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1])) / float64(period)
	}
	return atr, nil
}

// Bands holds Bollinger band values.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width returns the band width relative to the middle band.
func (b Bands) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// Bollinger computes bands of `mult` population standard deviations around the SMA.
func Bollinger(bars []model.OHLCV, period int, mult float64) (Bands, error) {
	closes := Closes(bars)
	mid, err := SMA(closes, period)
	if err != nil {
		return Bands{}, err
	}
	variance := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{Upper: mid + mult*sd, Middle: mid, Lower: mid - mult*sd}, nil
}
