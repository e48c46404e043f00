package revalidation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

func snap(kv map[string]float64) *model.Snapshot {
	keys := []string{model.SnapRSI, model.SnapMACDHist, model.SnapStochK, model.SnapADX, model.SnapATR}
	s := model.NewSnapshot(keys...)
	for _, k := range keys {
		if v, ok := kv[k]; ok {
			_ = s.Set(k, v)
		}
	}
	return s
}

var buyEntry = map[string]float64{
	model.SnapRSI: 41, model.SnapMACDHist: 0.4, model.SnapStochK: 30, model.SnapADX: 25, model.SnapATR: 5,
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		dir     model.Direction
		entry   map[string]float64
		current map[string]float64
		want    model.ThesisStatus
	}{
		{"unchanged", model.Buy, buyEntry, buyEntry, model.ThesisIntact},
		{"pullback deepened but momentum held", model.Buy, buyEntry, map[string]float64{
			model.SnapRSI: 47, model.SnapMACDHist: 0.1, model.SnapStochK: 35, model.SnapADX: 22, model.SnapATR: 9,
		}, model.ThesisIntact},
		{"half against", model.Buy, buyEntry, map[string]float64{
			model.SnapRSI: 45, model.SnapMACDHist: 0.1, model.SnapStochK: 20, model.SnapADX: 15,
		}, model.ThesisWeakening},
		{"everything flipped", model.Buy, buyEntry, map[string]float64{
			model.SnapRSI: 35, model.SnapMACDHist: -0.2, model.SnapStochK: 20, model.SnapADX: 15,
		}, model.ThesisBroken},
		{"sell still valid", model.Sell, map[string]float64{
			model.SnapRSI: 62, model.SnapMACDHist: -0.3, model.SnapStochK: 75,
		}, map[string]float64{
			model.SnapRSI: 58, model.SnapMACDHist: -0.1, model.SnapStochK: 60,
		}, model.ThesisIntact},
		{"only unscored keys", model.Buy, map[string]float64{model.SnapATR: 5}, map[string]float64{model.SnapATR: 1}, model.ThesisIntact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, notes := Classify(tt.dir, snap(tt.entry), snap(tt.current))
			if got != tt.want {
				t.Errorf("Classify = %s (%s), want %s", got, notes, tt.want)
			}
		})
	}

	if got, _ := Classify(model.Buy, nil, snap(buyEntry)); got != model.ThesisIntact {
		t.Errorf("nil entry snapshot = %s", got)
	}
	_, notes := Classify(model.Buy, snap(buyEntry), snap(map[string]float64{model.SnapRSI: 35}))
	if !strings.Contains(notes, "0/1") || !strings.Contains(notes, "rsi 35.00") {
		t.Errorf("notes = %q", notes)
	}
}

type fixedSnapshot struct {
	s   *model.Snapshot
	err error
	n   int
}

func (f *fixedSnapshot) Snapshot(context.Context, model.Direction) (*model.Snapshot, error) {
	f.n++
	return f.s, f.err
}

var posted = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

func openSignal(t *testing.T) (*store.Store, *model.Signal) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "reval.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	sig := &model.Signal{
		TenantID: "t1", StrategyID: "aggressive", Symbol: "XAUUSD", Timeframe: model.M15,
		Direction: model.Buy, Entry: 2650, StopLoss: 2645, TPCount: 1, Snapshot: snap(buyEntry),
		CreatedAt: posted,
	}
	sig.TakeProfits[0] = model.TakeProfitLevel{Price: 2656, Allocation: 100}
	id, err := st.CreateDraftSignal(ctx, sig)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.ConfirmPending(ctx, id, "msg-1", posted); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ActivateSignal(ctx, id); err != nil {
		t.Fatal(err)
	}
	loaded, err := st.GetSignal(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return st, loaded
}

var opts = Options{StagnantAfter: 4 * time.Hour, RevalidateEvery: time.Hour, MaxHold: 24 * time.Hour}

func TestCheck_TransitionsAndCounter(t *testing.T) {
	ctx := context.Background()
	st, sig := openSignal(t)
	m := New(st, opts, zap.NewNop())
	same := &fixedSnapshot{s: snap(buyEntry)}
	weak := &fixedSnapshot{s: snap(map[string]float64{
		model.SnapRSI: 45, model.SnapMACDHist: 0.1, model.SnapStochK: 20, model.SnapADX: 15,
	})}

	if out, _ := m.Check(ctx, sig, same, posted.Add(3*time.Hour)); out.Evaluated {
		t.Fatal("revalidated before the stagnation threshold")
	}

	t0 := posted.Add(5 * time.Hour)
	out, err := m.Check(ctx, sig, same, t0)
	if err != nil || !out.Evaluated || out.Transitioned || out.Status != model.ThesisIntact {
		t.Fatalf("first check = %+v, %v", out, err)
	}
	if out, _ := m.Check(ctx, sig, same, t0.Add(30*time.Minute)); out.Evaluated {
		t.Fatal("revalidated inside the interval")
	}
	out, _ = m.Check(ctx, sig, weak, t0.Add(time.Hour))
	if !out.Transitioned || out.Status != model.ThesisWeakening {
		t.Fatalf("expected transition to weakening, got %+v", out)
	}
	out, _ = m.Check(ctx, sig, weak, t0.Add(2*time.Hour))
	if out.Transitioned {
		t.Fatal("repeat classification reported as a transition")
	}

	stored, _ := st.GetSignal(ctx, sig.ID)
	if stored.RevalidationCount != 3 {
		t.Errorf("revalidation_count = %d, want 3", stored.RevalidationCount)
	}
	if !stored.ThesisChangedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("thesis_changed_at = %v, want %v", stored.ThesisChangedAt, t0.Add(time.Hour))
	}
	if stored.ThesisStatus != model.ThesisWeakening {
		t.Errorf("thesis_status = %s", stored.ThesisStatus)
	}
}

func TestCheck_TimeoutFiresOnce(t *testing.T) {
	ctx := context.Background()
	st, sig := openSignal(t)
	stale := *sig
	at := posted.Add(25 * time.Hour)
	snaps := &fixedSnapshot{s: snap(buyEntry)}

	a := New(st, opts, nil)
	b := New(st, opts, nil)
	first, err := a.Check(ctx, sig, snaps, at)
	if err != nil || !first.TimedOut {
		t.Fatalf("first = %+v, %v", first, err)
	}
	second, err := b.Check(ctx, &stale, snaps, at)
	if err != nil || second.TimedOut {
		t.Fatalf("timeout fired twice: %+v, %v", second, err)
	}
	if again, _ := a.Check(ctx, sig, snaps, at.Add(time.Hour)); again.TimedOut {
		t.Fatal("timeout fired again on the same worker")
	}
}

func TestCheck_SnapshotUnavailable(t *testing.T) {
	ctx := context.Background()
	st, sig := openSignal(t)
	m := New(st, opts, nil)
	boom := errors.New("indicator data unavailable")

	out, err := m.Check(ctx, sig, &fixedSnapshot{err: boom}, posted.Add(30*time.Hour))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if out.Evaluated || !out.TimedOut {
		t.Fatalf("outcome = %+v", out)
	}
	stored, _ := st.GetSignal(ctx, sig.ID)
	if stored.RevalidationCount != 0 {
		t.Error("failed snapshot must not count as a revalidation")
	}
}

func TestDue_SkipsProgressingSignals(t *testing.T) {
	m := New(nil, opts, nil)
	sig := &model.Signal{Status: model.StatusOpen, PostedAt: posted, TPCount: 1}
	now := posted.Add(6 * time.Hour)
	if !m.Due(sig, now) {
		t.Fatal("stagnant signal not due")
	}
	sig.TakeProfits[0].Hit = true
	if m.Due(sig, now) {
		t.Error("signal with a target hit is not stagnant")
	}
	if m.Due(&model.Signal{Status: model.StatusPending, PostedAt: posted}, now) {
		t.Error("pending signal revalidated")
	}
}
