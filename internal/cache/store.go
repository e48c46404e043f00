// Package cache keeps fetched bar series between evaluation cycles.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalSentinel/internal/model"
)

// Store is a byte-oriented key/value store with per-key TTL.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Entry is a cached bar series and the moment it stops being usable.
type Entry struct {
	Data      []model.OHLCV `json:"data"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Fresh reports whether the entry can still be served at now.
func (e Entry) Fresh(now time.Time) bool {
	return len(e.Data) > 0 && now.Before(e.ExpiresAt)
}

// BarKey builds the cache key for a symbol/timeframe series.
func BarKey(symbol string, tf model.Timeframe) string {
	return fmt.Sprintf("bars:%s:%s", symbol, tf)
}

// GetEntry loads and decodes an entry. A missing or stale entry returns found=false.
func GetEntry(ctx context.Context, s Store, key string, now time.Time) (Entry, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	if !e.Fresh(now) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// PutEntry stores bars under key until now+ttl.
func PutEntry(ctx context.Context, s Store, key string, bars []model.OHLCV, now time.Time, ttl time.Duration) error {
	raw, err := json.Marshal(Entry{Data: bars, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}
