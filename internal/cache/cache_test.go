package cache

import (
	"context"
	"testing"
	"time"

	"SignalSentinel/internal/model"
)

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := s.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestEntryRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()
	key := BarKey("XAUUSD", model.M15)

	bars := []model.OHLCV{{Time: now, Open: 2650, High: 2652, Low: 2648, Close: 2651}}
	if err := PutEntry(ctx, s, key, bars, now, 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	e, ok, err := GetEntry(ctx, s, key, now.Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("GetEntry ok=%v err=%v", ok, err)
	}
	if len(e.Data) != 1 || e.Data[0].Close != 2651 {
		t.Errorf("unexpected data %+v", e.Data)
	}
	// Stale by the entry's own deadline even if the store still holds it.
	if _, ok, _ := GetEntry(ctx, s, key, now.Add(6*time.Minute)); ok {
		t.Error("expected stale entry to be ignored")
	}
}

func TestEntryFresh_Empty(t *testing.T) {
	e := Entry{ExpiresAt: time.Now().Add(time.Hour)}
	if e.Fresh(time.Now()) {
		t.Error("empty entry must not be fresh")
	}
}
