package model

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Bullish reports whether the bar closed above its open.
func (b OHLCV) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b OHLCV) Bearish() bool { return b.Close < b.Open }

// Timeframe is a bar resolution understood by the indicator provider.
type Timeframe string

const (
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

// Duration returns the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M15:
		return 15 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ParseTimeframe accepts the canonical names plus a few common aliases.
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "M15", "15M":
		return M15, nil
	case "H1", "1H", "60M":
		return H1, nil
	case "H4", "4H":
		return H4, nil
	case "D1", "1D":
		return D1, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Quote is a point-in-time price observation.
type Quote struct {
	Symbol string
	Price  float64
	At     time.Time
}
