package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/botswitch"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/store"
	"SignalSentinel/internal/strategy"
)

type countingTicker struct {
	n   int
	err error
}

func (c *countingTicker) Tick(context.Context) error { c.n++; return c.err }

func newScheduler(t *testing.T) (*Scheduler, *store.Store, *countingTicker) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sched.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	reg := strategy.NewRegistry(strategy.Deps{})
	cfg := &config.Config{Tenants: []config.Tenant{{ID: "t1", ChatID: "-100", AdminChatID: "42"}}}
	tick := &countingTicker{}
	s := New(context.Background(), Deps{
		Signals:  tick,
		Monitor:  tick,
		Switcher: botswitch.New(st, reg, nil),
		Open:     st,
		Catalog:  reg,
		Replies:  notifier.Formatter{Decimals: 2},
		Tenants:  cfg.TenantByChat,
	}, nil)
	return s, st, tick
}

func openSignal(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	sig := &model.Signal{TenantID: "t1", StrategyID: "aggressive", Symbol: "XAUUSD", Direction: model.Buy,
		Entry: 2650, StopLoss: 2645, TPCount: 1}
	sig.TakeProfits[0] = model.TakeProfitLevel{Price: 2656, Allocation: 100}
	id, err := st.CreateDraftSignal(ctx, sig)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := st.ConfirmPending(ctx, id, "m1", time.Now()); !ok || err != nil {
		t.Fatalf("confirm: %v %v", ok, err)
	}
}

func TestHandleCommand_UnknownChat(t *testing.T) {
	s, _, _ := newScheduler(t)
	if got := s.HandleCommand(context.Background(), "999", "/status"); got != "" {
		t.Errorf("reply = %q, want none", got)
	}
}

func TestHandleCommand_Strategies(t *testing.T) {
	s, _, _ := newScheduler(t)
	got := s.HandleCommand(context.Background(), "-100", "/strategies")
	if !strings.Contains(got, "aggressive (active)") || !strings.Contains(got, "trend_pullback") {
		t.Errorf("reply = %q", got)
	}
}

func TestHandleCommand_SwitchFlatAndDeferred(t *testing.T) {
	s, st, _ := newScheduler(t)
	ctx := context.Background()

	if got := s.HandleCommand(ctx, "-100", "/switch conservative"); got != "Active strategy is now conservative." {
		t.Fatalf("flat switch reply = %q", got)
	}

	openSignal(t, st)
	got := s.HandleCommand(ctx, "42", "/switch@SentinelBot trend_pullback")
	if !strings.Contains(got, "queued") || !strings.Contains(got, "conservative stays active") {
		t.Fatalf("deferred switch reply = %q", got)
	}
	status := s.HandleCommand(ctx, "-100", "/status")
	if !strings.Contains(status, "Active strategy: conservative") || !strings.Contains(status, "Queued: trend_pullback") {
		t.Fatalf("status = %q", status)
	}
	if !strings.Contains(status, "BUY XAUUSD @ 2650.00 [pending]") {
		t.Errorf("status missing open signal: %q", status)
	}

	if got := s.HandleCommand(ctx, "-100", "/cancelswitch"); got != "Queued switch cancelled." {
		t.Fatalf("cancel reply = %q", got)
	}
	if status := s.HandleCommand(ctx, "-100", "/status"); strings.Contains(status, "Queued:") {
		t.Errorf("queue not cleared: %q", status)
	}
}

func TestHandleCommand_History(t *testing.T) {
	s, st, _ := newScheduler(t)
	ctx := context.Background()
	if got := s.HandleCommand(ctx, "-100", "/history"); !strings.Contains(got, "No signals yet") {
		t.Fatalf("empty history = %q", got)
	}
	openSignal(t, st)
	if got := s.HandleCommand(ctx, "-100", "/history"); !strings.Contains(got, "BUY XAUUSD @ 2650.00 [pending]") {
		t.Errorf("history = %q", got)
	}
}

func TestHandleCommand_Errors(t *testing.T) {
	s, _, _ := newScheduler(t)
	ctx := context.Background()
	if got := s.HandleCommand(ctx, "-100", "/switch scalper"); !strings.Contains(got, "Unknown strategy") {
		t.Errorf("unknown strategy reply = %q", got)
	}
	if got := s.HandleCommand(ctx, "-100", "/switch"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("usage reply = %q", got)
	}
	if got := s.HandleCommand(ctx, "-100", "hello"); !strings.Contains(got, "/status") {
		t.Errorf("help reply = %q", got)
	}
}

func TestRegisterAll(t *testing.T) {
	s, _, tick := newScheduler(t)
	if err := s.RegisterAll("not a schedule", "*/30 * * * * *"); err == nil {
		t.Error("expected error for invalid signal schedule")
	}
	if err := s.RegisterAll("5 */15 * * * *", "*/30 * * * * *"); err != nil {
		t.Fatal(err)
	}

	tick.err = errors.New("boom")
	s.RunSignalsNow()
	s.RunMonitorNow()
	if tick.n != 2 {
		t.Errorf("ticks = %d, want 2", tick.n)
	}
}
