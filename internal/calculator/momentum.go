package calculator

import (
	"math"

	"SignalSentinel/internal/model"
)

// MACDResult holds the latest MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the moving average convergence/divergence of closing prices.
func MACD(bars []model.OHLCV, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, errPeriod
	}
	if fast >= slow {
		fast, slow = slow, fast
	}
	closes := Closes(bars)
	if len(closes) < slow+signal-1 {
		return MACDResult{}, ErrInsufficientData
	}
	fastSeries, err := EMASeries(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowSeries, err := EMASeries(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}
	// Align both series on the last len(slowSeries) closes.
	offset := len(fastSeries) - len(slowSeries)
	line := make([]float64, len(slowSeries))
	for i := range slowSeries {
		line[i] = fastSeries[i+offset] - slowSeries[i]
	}
	sig, err := EMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	last := line[len(line)-1]
	return MACDResult{MACD: last, Signal: sig, Histogram: last - sig}, nil
}

// StochasticResult holds the slow %K and %D lines.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic computes the slow stochastic oscillator (%K smoothed by `smooth`, %D the SMA of %K).
func Stochastic(bars []model.OHLCV, period, smooth, dPeriod int) (StochasticResult, error) {
	if period <= 0 || smooth <= 0 || dPeriod <= 0 {
		return StochasticResult{}, errPeriod
	}
	need := period + smooth + dPeriod - 2
	if len(bars) < need {
		return StochasticResult{}, ErrInsufficientData
	}

	rawK := make([]float64, 0, len(bars)-period+1)
	for i := period - 1; i < len(bars); i++ {
		hi, lo, _ := HighLow(bars[i-period+1:i+1], 0)
		if hi == lo {
			rawK = append(rawK, 50)
			continue
		}
		rawK = append(rawK, (bars[i].Close-lo)/(hi-lo)*100)
	}

	slowK := make([]float64, 0, len(rawK)-smooth+1)
	for i := smooth - 1; i < len(rawK); i++ {
		v, _ := SMA(rawK[:i+1], smooth)
		slowK = append(slowK, v)
	}
	d, err := SMA(slowK, dPeriod)
	if err != nil {
		return StochasticResult{}, err
	}
	return StochasticResult{K: slowK[len(slowK)-1], D: d}, nil
}

// ADXResult holds the average directional index and its directional indicators.
type ADXResult struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX computes Wilder's average directional index. Requires 2*period+1 bars.
func ADX(bars []model.OHLCV, period int) (ADXResult, error) {
	if period <= 0 {
		return ADXResult{}, errPeriod
	}
	if len(bars) < 2*period+1 {
		return ADXResult{}, ErrInsufficientData
	}

	var trSum, plusSum, minusSum float64
	dxs := make([]float64, 0, len(bars))
	var plusDI, minusDI float64

	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := trueRange(bars[i], bars[i-1])

		if i <= period {
			trSum += tr
			plusSum += plusDM
			minusSum += minusDM
			if i < period {
				continue
			}
		} else {
			trSum = trSum - trSum/float64(period) + tr
			plusSum = plusSum - plusSum/float64(period) + plusDM
			minusSum = minusSum - minusSum/float64(period) + minusDM
		}

		if trSum == 0 {
			plusDI, minusDI = 0, 0
		} else {
			plusDI = plusSum / trSum * 100
			minusDI = minusSum / trSum * 100
		}
		dx := 0.0
		if plusDI+minusDI > 0 {
			dx = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
		}
		dxs = append(dxs, dx)
	}

	if len(dxs) < period {
		return ADXResult{}, ErrInsufficientData
	}
	adx := 0.0
	for i := 0; i < period; i++ {
		adx += dxs[i]
	}
	adx /= float64(period)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}
	return ADXResult{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}, nil
}
