package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/config"
	"SignalSentinel/internal/lifecycle"
	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
	"SignalSentinel/internal/strategy"
)

type fakeStrategy struct {
	strategy.Strategy
	allow    bool
	reason   string
	proposal *model.Proposal
	err      error
	loaded   []string
}

func (f *fakeStrategy) ID() string                 { return "aggressive" }
func (f *fakeStrategy) Timeframe() model.Timeframe { return model.M15 }
func (f *fakeStrategy) LoadConfig(_ context.Context, tenant string) {
	f.loaded = append(f.loaded, tenant)
}
func (f *fakeStrategy) CheckGuardrails(context.Context) (bool, string) { return f.allow, f.reason }
func (f *fakeStrategy) CheckForSignals(context.Context, model.Timeframe) (*model.Proposal, error) {
	return f.proposal, f.err
}

type resolver struct{ s *fakeStrategy }

func (r resolver) Resolve(string) strategy.Strategy { return r.s }

type selector struct{}

func (selector) Active(context.Context, string) (string, error) { return "aggressive", nil }

type openSignals map[string]*model.Signal

func (o openSignals) GetOpenSignal(_ context.Context, tenant string) (*model.Signal, error) {
	return o[tenant], nil
}

type opener struct {
	mu    sync.Mutex
	calls []string // tenant:chat
	errs  map[string]error
}

func (o *opener) Open(_ context.Context, tenant, chat string, p *model.Proposal) (*model.Signal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, tenant+":"+chat)
	if err := o.errs[tenant]; err != nil {
		return nil, err
	}
	return &model.Signal{ID: "sig-" + tenant, TenantID: tenant, Direction: p.Direction}, nil
}

type alerts struct{ sent []string }

func (a *alerts) Deliver(ctx context.Context, text, chat string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.sent = append(a.sent, chat+"|"+text)
	return "1", nil
}

func (a *alerts) ManualIntervention(tenant string, err error) string {
	return fmt.Sprintf("halt %s: %v", tenant, err)
}

func buyProposal() *model.Proposal {
	return &model.Proposal{
		StrategyID: "aggressive", Symbol: "XAUUSD", Timeframe: model.M15, Direction: model.Buy,
		Entry: 2650, StopLoss: 2645,
		TakeProfits: []model.TakeProfitLevel{{Price: 2656, Allocation: 50}, {Price: 2660, Allocation: 30}, {Price: 2662.5, Allocation: 20}},
	}
}

var tenants = []config.Tenant{
	{ID: "t1", ChatID: "c1", AdminChatID: "a1"},
	{ID: "t2", ChatID: "c2"},
}

func newEngine(s *fakeStrategy, open openSignals, op *opener, al *alerts) *Engine {
	return New(Deps{
		Tenants:    tenants,
		Strategies: resolver{s},
		Selector:   selector{},
		Signals:    open,
		Lifecycle:  op,
		Transport:  al,
		Alerts:     al,
	}, nil)
}

func TestTick_OpensPerTenant(t *testing.T) {
	s := &fakeStrategy{allow: true, proposal: buyProposal()}
	op := &opener{}
	e := newEngine(s, openSignals{}, op, &alerts{})

	if err := e.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(op.calls) != 2 || op.calls[0] != "t1:c1" || op.calls[1] != "t2:c2" {
		t.Fatalf("open calls = %v", op.calls)
	}
	if len(s.loaded) != 2 || s.loaded[0] != "t1" {
		t.Errorf("config loaded for %v", s.loaded)
	}
}

func TestRunTenant_Skips(t *testing.T) {
	tests := []struct {
		name string
		s    *fakeStrategy
		open openSignals
	}{
		{"open signal", &fakeStrategy{allow: true, proposal: buyProposal()}, openSignals{"t1": {ID: "x"}}},
		{"guardrail", &fakeStrategy{allow: false, reason: "cooldown", proposal: buyProposal()}, openSignals{}},
		{"indicators unavailable", &fakeStrategy{allow: true, err: fmt.Errorf("rsi: %w", collector.ErrUnavailable)}, openSignals{}},
		{"strategy error", &fakeStrategy{allow: true, err: errors.New("boom")}, openSignals{}},
		{"no setup", &fakeStrategy{allow: true}, openSignals{}},
		{"invalid proposal", &fakeStrategy{allow: true, proposal: &model.Proposal{Direction: model.Buy, Entry: 1, StopLoss: 2}}, openSignals{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &opener{}
			e := newEngine(tt.s, tt.open, op, &alerts{})
			if err := e.RunTenant(context.Background(), tenants[0]); err != nil {
				t.Fatalf("err = %v", err)
			}
			if len(op.calls) != 0 {
				t.Errorf("open called: %v", op.calls)
			}
		})
	}
}

func TestRunTenant_BenignOpenFailures(t *testing.T) {
	for _, err := range []error{store.ErrOpenSignalExists, lifecycle.ErrNotConfirmed, fmt.Errorf("%w: timeout", lifecycle.ErrDeliveryFailed)} {
		op := &opener{errs: map[string]error{"t1": err}}
		al := &alerts{}
		e := newEngine(&fakeStrategy{allow: true, proposal: buyProposal()}, openSignals{}, op, al)
		if got := e.RunTenant(context.Background(), tenants[0]); got != nil {
			t.Errorf("%v: err = %v", err, got)
		}
		if e.Halted("t1") != nil || len(al.sent) != 0 {
			t.Errorf("%v: tenant halted", err)
		}
	}
}

func TestTick_GhostWriteHaltsTenant(t *testing.T) {
	ghost := &lifecycle.GhostWriteError{SignalID: "s1", TenantID: "t1", DeliveryID: "m1", Confirm: errors.New("disk full")}
	op := &opener{errs: map[string]error{"t1": ghost}}
	al := &alerts{}
	e := newEngine(&fakeStrategy{allow: true, proposal: buyProposal()}, openSignals{}, op, al)

	err := e.Tick(context.Background())
	if !errors.Is(err, lifecycle.ErrManualIntervention) {
		t.Fatalf("err = %v, want manual intervention", err)
	}
	if !errors.Is(e.Halted("t1"), lifecycle.ErrManualIntervention) {
		t.Error("t1 not halted")
	}
	if len(al.sent) != 1 || al.sent[0][:3] != "a1|" {
		t.Fatalf("alerts = %v", al.sent)
	}

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("second tick err = %v", err)
	}
	if len(op.calls) != 3 || op.calls[2] != "t2:c2" {
		t.Fatalf("open calls = %v, want t1 once and t2 twice", op.calls)
	}
}

func TestHalt_AlertFallsBackToSignalChat(t *testing.T) {
	ghost := &lifecycle.GhostWriteError{SignalID: "s2", TenantID: "t2"}
	al := &alerts{}
	e := newEngine(&fakeStrategy{allow: true, proposal: buyProposal()}, openSignals{},
		&opener{errs: map[string]error{"t2": ghost}}, al)

	if err := e.RunTenant(context.Background(), tenants[1]); err == nil {
		t.Fatal("expected error")
	}
	if len(al.sent) != 1 || al.sent[0][:3] != "c2|" {
		t.Fatalf("alerts = %v", al.sent)
	}
}

func TestHalt_AlertSurvivesCancelledTick(t *testing.T) {
	ghost := &lifecycle.GhostWriteError{SignalID: "s1", TenantID: "t1"}
	al := &alerts{}
	e := newEngine(&fakeStrategy{allow: true, proposal: buyProposal()}, openSignals{},
		&opener{errs: map[string]error{"t1": ghost}}, al)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.RunTenant(ctx, tenants[0]); !errors.As(err, &ghost) {
		t.Fatalf("err = %v", err)
	}
	if len(al.sent) != 1 || al.sent[0][:3] != "a1|" {
		t.Fatalf("alerts = %v", al.sent)
	}
}
