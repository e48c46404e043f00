package monitor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/botswitch"
	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/milestone"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/revalidation"
	"SignalSentinel/internal/store"
	"SignalSentinel/internal/strategy"
)

type outbox struct {
	mu   sync.Mutex
	msgs []string
}

func (o *outbox) Deliver(_ context.Context, text, _ string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, text)
	return "m", nil
}

func (o *outbox) count(substr string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type quote struct {
	mu sync.Mutex
	v  float64
}

func (q *quote) set(v float64) { q.mu.Lock(); q.v = v; q.mu.Unlock() }

func (q *quote) Price(context.Context, string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.v, nil
}

// stubStrategy serves a fixed breakeven trigger and snapshot.
type stubStrategy struct {
	strategy.Strategy
	snap *model.Snapshot
}

func (s stubStrategy) LoadConfig(context.Context, string) {}
func (s stubStrategy) BreakevenTrigger() float64          { return 0.7 }
func (s stubStrategy) Snapshot(context.Context, model.Direction) (*model.Snapshot, error) {
	return s.snap, nil
}

type stubResolver struct{ s stubStrategy }

func (r stubResolver) Resolve(string) strategy.Strategy { return r.s }

func rsiSnap(v float64) *model.Snapshot {
	s := model.NewSnapshot(model.SnapRSI)
	_ = s.Set(model.SnapRSI, v)
	return s
}

type harness struct {
	st    *store.Store
	lc    *lifecycle.Manager
	out   *outbox
	quote *quote
	now   time.Time
	snap  *model.Snapshot
	reval revalidation.Options
	promo lifecycle.Promoter
}

var posted = time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "monitor.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	h := &harness{
		st:    st,
		out:   &outbox{},
		quote: &quote{},
		now:   posted,
		snap:  rsiSnap(41),
		reval: revalidation.Options{StagnantAfter: 100 * time.Hour, RevalidateEvery: time.Hour},
	}
	h.lc = lifecycle.New(st, h.out, notifier.Formatter{Decimals: 2}, nil,
		lifecycle.Options{PipSize: 0.1, Decimals: 2, Now: h.clock}, zap.NewNop())
	return h
}

func (h *harness) clock() time.Time { return h.now }

func (h *harness) monitor() *Monitor {
	return New(Deps{
		Store:       h.st,
		Prices:      h.quote,
		Lifecycle:   h.lc,
		Milestones:  milestone.NewCoordinator(h.st, nil),
		Revalidator: revalidation.New(h.st, h.reval, nil),
		Strategies:  stubResolver{stubStrategy{snap: h.snap}},
		Transport:   h.out,
		Messages:    notifier.Formatter{Decimals: 2},
		Chats:       func(string) (string, bool) { return "chat", true },
		Promoter:    h.promo,
	}, Options{ExpireAfter: 48 * time.Hour, DraftTTL: 5 * time.Minute, Now: h.clock}, zap.NewNop())
}

func (h *harness) open(t *testing.T) *model.Signal {
	t.Helper()
	sig, err := h.lc.Open(context.Background(), "t1", "chat", &model.Proposal{
		StrategyID: "aggressive", Symbol: "XAUUSD", Timeframe: model.M15, Direction: model.Buy,
		Entry: 2650, StopLoss: 2645,
		TakeProfits: []model.TakeProfitLevel{{Price: 2656, Allocation: 50}, {Price: 2660, Allocation: 30}, {Price: 2662.5, Allocation: 20}},
		Snapshot:    rsiSnap(41),
	})
	if err != nil {
		t.Fatal(err)
	}
	return sig
}

func (h *harness) tick(t *testing.T, m *Monitor, price float64) {
	t.Helper()
	h.quote.set(price)
	if err := m.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestTick_FullWinningLifecycle(t *testing.T) {
	h := newHarness(t)
	sig := h.open(t)
	m := h.monitor()
	ctx := context.Background()

	h.tick(t, m, 2650.5)
	if got, _ := h.st.GetSignal(ctx, sig.ID); got.Status != model.StatusOpen {
		t.Fatalf("status = %s, want open", got.Status)
	}

	h.tick(t, m, 2652) // 33% of the way to TP1
	if h.out.count("Progress") != 1 {
		t.Fatalf("messages = %v", h.out.msgs)
	}

	h.tick(t, m, 2654.3) // 72%: breakeven and zone 3
	if h.out.count("breakeven") != 1 || h.out.count("70%") != 1 {
		t.Fatalf("messages = %v", h.out.msgs)
	}
	got, _ := h.st.GetSignal(ctx, sig.ID)
	if !got.BreakevenTriggered || got.EffectiveSL != 2650 {
		t.Fatalf("breakeven not applied: %+v", got)
	}

	h.tick(t, m, 2653) // back into zone 2: never re-announced
	if h.out.count("Progress") != 2 {
		t.Fatalf("zone re-announced: %v", h.out.msgs)
	}

	h.tick(t, m, 2656.1)
	h.tick(t, m, 2656.2)
	if h.out.count("TP1 hit") != 1 {
		t.Fatalf("TP1 messages = %d", h.out.count("TP1 hit"))
	}

	h.tick(t, m, 2662.6)
	if h.out.count("TP2 hit") != 1 || h.out.count("TP3 hit") != 1 || h.out.count("Signal won") != 1 {
		t.Fatalf("messages = %v", h.out.msgs)
	}
	got, _ = h.st.GetSignal(ctx, sig.ID)
	if got.Status != model.StatusWon || got.ResultPips != 126 || got.EffectiveSL != 2660 {
		t.Fatalf("closed = %+v", got)
	}
	if got.GuidanceCount != 6 {
		t.Errorf("guidance_count = %d, want 6", got.GuidanceCount)
	}
	if open, _ := h.st.GetOpenSignal(ctx, "t1"); open != nil {
		t.Error("tenant still has an open signal")
	}
}

func TestTick_StopLossAndCaution(t *testing.T) {
	h := newHarness(t)
	sig := h.open(t)
	m := h.monitor()

	h.tick(t, m, 2647) // 60% toward the stop
	if h.out.count("Caution") != 1 {
		t.Fatalf("messages = %v", h.out.msgs)
	}
	h.tick(t, m, 2644.8)
	got, _ := h.st.GetSignal(context.Background(), sig.ID)
	if got.Status != model.StatusLost || got.ResultPips != -52 {
		t.Fatalf("closed = %+v", got)
	}
	if h.out.count("Signal lost") != 1 {
		t.Fatalf("messages = %v", h.out.msgs)
	}
	h.tick(t, m, 2640)
	if h.out.count("Signal lost") != 1 {
		t.Error("closure announced twice")
	}
}

func TestTick_ExpiryAndReaping(t *testing.T) {
	h := newHarness(t)
	sig := h.open(t)
	ctx := context.Background()

	draft := &model.Signal{TenantID: "t2", StrategyID: "aggressive", Symbol: "XAUUSD", Direction: model.Sell,
		Entry: 2650, StopLoss: 2655, TPCount: 1, CreatedAt: posted.Add(-time.Hour)}
	draft.TakeProfits[0] = model.TakeProfitLevel{Price: 2640, Allocation: 100}
	draftID, err := h.st.CreateDraftSignal(ctx, draft)
	if err != nil {
		t.Fatal(err)
	}

	h.now = posted.Add(49 * time.Hour)
	h.tick(t, h.monitor(), 2651)

	got, _ := h.st.GetSignal(ctx, sig.ID)
	if got.Status != model.StatusExpired || got.ResultPips != 10 {
		t.Fatalf("expired = %+v", got)
	}
	if d, _ := h.st.GetSignal(ctx, draftID); d.Status != model.StatusBroadcastFailed {
		t.Fatalf("stale draft status = %s", d.Status)
	}
}

type catalog struct{}

func (catalog) Known(id string) bool { return id == "aggressive" || id == "conservative" }
func (catalog) Default() string      { return "aggressive" }

func TestTick_ReapedDraftPromotesQueuedSwitch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := botswitch.New(h.st, catalog{}, nil)
	h.promo = q
	if err := q.Seed(ctx, "t2", "aggressive"); err != nil {
		t.Fatal(err)
	}

	draft := &model.Signal{TenantID: "t2", StrategyID: "aggressive", Symbol: "XAUUSD", Direction: model.Buy,
		Entry: 2650, StopLoss: 2645, TPCount: 1, CreatedAt: posted.Add(-time.Hour)}
	draft.TakeProfits[0] = model.TakeProfitLevel{Price: 2660, Allocation: 100}
	if _, err := h.st.CreateDraftSignal(ctx, draft); err != nil {
		t.Fatal(err)
	}
	out, err := q.SetActive(ctx, "t2", "conservative")
	if err != nil || !out.Deferred {
		t.Fatalf("switch = %+v, %v; want deferred behind the draft", out, err)
	}

	h.tick(t, h.monitor(), 2650)

	sel, err := q.Selection(ctx, "t2")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Active != "conservative" || sel.Queued != "" {
		t.Errorf("selection = %+v, want conservative promoted", sel)
	}
}

func TestTick_ThesisBrokenAndTimeout(t *testing.T) {
	h := newHarness(t)
	h.reval = revalidation.Options{StagnantAfter: time.Hour, RevalidateEvery: time.Hour, MaxHold: 2 * time.Hour}
	h.snap = rsiSnap(30)
	sig := h.open(t)

	h.now = posted.Add(3 * time.Hour)
	m := h.monitor()
	h.tick(t, m, 2650.5)
	h.tick(t, m, 2650.5)

	if h.out.count("Thesis broken") != 1 || h.out.count("Max hold reached") != 1 {
		t.Fatalf("messages = %v", h.out.msgs)
	}
	events, _ := h.st.Narrative(context.Background(), sig.ID)
	var reval int
	for _, ev := range events {
		if ev.Type == model.EventRevalidation {
			reval++
			if v, ok := ev.Snapshot.Get(model.SnapRSI); !ok || v != 30 {
				t.Errorf("revalidation snapshot = %v", v)
			}
		}
	}
	if reval != 1 {
		t.Errorf("revalidation events = %d", reval)
	}
}

func TestProcess_ConcurrentWorkersAnnounceOnce(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.tick(t, h.monitor(), 2650.5) // activate

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		sigs, err := h.st.ListOpenSignals(context.Background())
		if err != nil || len(sigs) != 1 {
			t.Fatalf("open signals = %v, %v", sigs, err)
		}
		m := h.monitor()
		wg.Add(1)
		go func(sig *model.Signal) {
			defer wg.Done()
			_ = m.Process(context.Background(), sig, 2656.4, h.now)
		}(sigs[0])
	}
	wg.Wait()

	if n := h.out.count("TP1 hit"); n != 1 {
		t.Fatalf("TP1 announced %d times", n)
	}
	if n := h.out.count("breakeven"); n > 1 {
		t.Fatalf("breakeven announced %d times", n)
	}
}
