package botswitch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

type catalog map[string]bool

func (c catalog) Known(id string) bool { return c[id] }
func (c catalog) Default() string      { return "aggressive" }

var strategies = catalog{"aggressive": true, "conservative": true}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "switch.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func openSignal(t *testing.T, st *store.Store, tenant string) string {
	t.Helper()
	ctx := context.Background()
	sig := &model.Signal{
		TenantID:   tenant,
		StrategyID: "aggressive",
		Symbol:     "XAUUSD",
		Timeframe:  model.M15,
		Direction:  model.Buy,
		Entry:      2650,
		StopLoss:   2645,
		TPCount:    1,
	}
	sig.TakeProfits[0] = model.TakeProfitLevel{Price: 2656, Allocation: 100}
	id, err := st.CreateDraftSignal(ctx, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := st.ConfirmPending(ctx, id, "msg-1", time.Now()); err != nil || !ok {
		t.Fatalf("confirm: %v %v", ok, err)
	}
	return id
}

func TestSetActive_SwitchesWhenFlat(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	q := New(st, strategies, zap.NewNop())

	if got, err := q.Active(ctx, "t1"); err != nil || got != "aggressive" {
		t.Fatalf("Active = %q, %v; want default", got, err)
	}
	out, err := q.SetActive(ctx, "t1", "conservative")
	if err != nil {
		t.Fatal(err)
	}
	if out.Deferred || out.Selection.Active != "conservative" || out.Selection.Queued != "" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSetActive_DeferredWhileOpenThenPromoted(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	q := New(st, strategies, zap.NewNop())
	if err := q.Seed(ctx, "t1", "aggressive"); err != nil {
		t.Fatal(err)
	}
	id := openSignal(t, st, "t1")

	out, err := q.SetActive(ctx, "t1", "conservative")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Deferred || out.BlockedBy != id {
		t.Fatalf("expected deferral blocked by %s, got %+v", id, out)
	}
	if out.Selection.Active != "aggressive" || out.Selection.Queued != "conservative" {
		t.Fatalf("selection = %+v", out.Selection)
	}

	closed, err := st.CloseSignal(ctx, id, model.CloseResult{Status: model.StatusWon, Price: 2656, At: time.Now()})
	if err != nil || !closed {
		t.Fatalf("close: %v %v", closed, err)
	}
	promoted, err := q.PromoteQueued(ctx, "t1")
	if err != nil || promoted != "conservative" {
		t.Fatalf("PromoteQueued = %q, %v", promoted, err)
	}
	sel, _ := q.Selection(ctx, "t1")
	if sel.Active != "conservative" || sel.Queued != "" {
		t.Fatalf("selection after promote = %+v", sel)
	}

	again, err := q.PromoteQueued(ctx, "t1")
	if err != nil || again != "" {
		t.Fatalf("second promote = %q, %v", again, err)
	}
}

func TestSetActive_UnknownStrategy(t *testing.T) {
	q := New(openStore(t), strategies, nil)
	_, err := q.SetActive(context.Background(), "t1", "martingale")
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
	if err := q.Seed(context.Background(), "t1", "martingale"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("Seed: expected ErrUnknownStrategy, got %v", err)
	}
}

func TestCancelQueued(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	q := New(st, strategies, nil)
	openSignal(t, st, "t1")
	if _, err := q.SetActive(ctx, "t1", "conservative"); err != nil {
		t.Fatal(err)
	}
	if err := q.CancelQueued(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if id, _ := q.PromoteQueued(ctx, "t1"); id != "" {
		t.Fatalf("cancelled request was promoted: %q", id)
	}
}
