package model

import (
	"encoding/json"
	"fmt"
)

// Snapshot is an ordered set of indicator readings restricted to a declared key set.
type Snapshot struct {
	allowed map[string]struct{}
	keys    []string
	values  map[string]float64
}

// NewSnapshot returns an empty snapshot accepting only the given keys.
func NewSnapshot(allowed ...string) *Snapshot {
	s := &Snapshot{
		allowed: make(map[string]struct{}, len(allowed)),
		values:  make(map[string]float64, len(allowed)),
	}
	for _, k := range allowed {
		s.allowed[k] = struct{}{}
	}
	return s
}

// Set records a value, keeping first-insertion order.
func (s *Snapshot) Set(key string, v float64) error {
	if _, ok := s.allowed[key]; !ok {
		return fmt.Errorf("snapshot key %q not allowed", key)
	}
	if _, seen := s.values[key]; !seen {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
	return nil
}

// Get returns a value and whether it was recorded.
func (s *Snapshot) Get(key string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the recorded keys in insertion order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of recorded keys.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

type snapshotEntry struct {
	Key   string  `json:"k"`
	Value float64 `json:"v"`
}

// MarshalJSON encodes the snapshot as an ordered list of key/value pairs.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	entries := make([]snapshotEntry, 0, s.Len())
	for _, k := range s.Keys() {
		entries = append(entries, snapshotEntry{Key: k, Value: s.values[k]})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON restores a snapshot; the decoded keys become the allowed set.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	*s = *NewSnapshot(keys...)
	for _, e := range entries {
		if err := s.Set(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot keys shared by strategies and revalidation.
const (
	SnapRSI        = "rsi"
	SnapMACDHist   = "macd_hist"
	SnapStochK     = "stoch_k"
	SnapADX        = "adx"
	SnapEMASpread  = "ema_spread"   // fast EMA minus slow EMA
	SnapPriceVsEMA = "price_vs_ema" // price minus the trend EMA
	SnapBBPos      = "bb_pos"       // 0 at the lower band, 1 at the upper
	SnapATR        = "atr"
	SnapRangeHigh  = "range_high"
	SnapRangeLow   = "range_low"
)
