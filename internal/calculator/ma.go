package calculator

import (
	"errors"

	"SignalSentinel/internal/model"
)

// ErrInsufficientData is returned when a series is too short for the requested period.
var ErrInsufficientData = errors.New("not enough data")

var errPeriod = errors.New("period must be positive")

// SMA computes the simple moving average of the last `period` values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errPeriod
	}
	if len(values) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// EMASeries returns the exponential moving average for every index from period-1 onward,
// seeded with the SMA of the first `period` values.
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	prev := seed / float64(period)
	out = append(out, prev)
	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out = append(out, prev)
	}
	return out, nil
}

// EMA returns the latest exponential moving average value.
func EMA(values []float64, period int) (float64, error) {
	series, err := EMASeries(values, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Closes extracts closing prices from bars.
func Closes(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
