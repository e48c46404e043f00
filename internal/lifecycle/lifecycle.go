// Package lifecycle owns the transitions of a persisted signal:
// draft -> pending -> open -> {won, lost, expired, cancelled}, with
// draft -> broadcast_failed when the entry message cannot be delivered.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
)

// Store is the signal persistence the state machine drives.
type Store interface {
	CreateDraftSignal(ctx context.Context, sig *model.Signal) (string, error)
	ConfirmPending(ctx context.Context, id, deliveryID string, at time.Time) (bool, error)
	MarkBroadcastFailed(ctx context.Context, id string, at time.Time) (bool, error)
	ActivateSignal(ctx context.Context, id string) (bool, error)
	GetSignal(ctx context.Context, id string) (*model.Signal, error)
	UpdateEffectiveStopLoss(ctx context.Context, id string, price float64) (bool, error)
	MarkBreakeven(ctx context.Context, id string, at time.Time) (bool, error)
	MarkTakeProfitHit(ctx context.Context, id string, level int, at time.Time) (bool, error)
	CloseSignal(ctx context.Context, id string, r model.CloseResult) (bool, error)
	RecordGuidance(ctx context.Context, id string, at time.Time) error
	AppendNarrative(ctx context.Context, ev *model.NarrativeEvent) error
}

// Transport delivers text to a channel and returns the delivery receipt id.
type Transport interface {
	Deliver(ctx context.Context, text, chatID string) (string, error)
}

// Messages renders the entry announcement.
type Messages interface {
	Entry(sig *model.Signal) string
}

// Promoter is told about every terminal transition so a queued strategy switch can take over.
type Promoter interface {
	PromoteQueued(ctx context.Context, tenantID string) (string, error)
}

// persistTimeout bounds the writes that record a delivery outcome.
const persistTimeout = 10 * time.Second

// Options carries the instrument precision used for close results.
type Options struct {
	PipSize  float64
	Decimals int32
	Now      func() time.Time
}

// Manager drives signal records through their lifecycle and announces new entries.
type Manager struct {
	store     Store
	transport Transport
	msgs      Messages
	promoter  Promoter
	opts      Options
	log       *zap.Logger
}

// New returns a Manager. A nil promoter disables strategy switch promotion.
func New(st Store, tr Transport, msgs Messages, promoter Promoter, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PipSize <= 0 {
		opts.PipSize = 1
	}
	return &Manager{store: st, transport: tr, msgs: msgs, promoter: promoter, opts: opts, log: log.Named("lifecycle")}
}

func (m *Manager) now() time.Time { return m.opts.Now().UTC() }

// Open persists a proposal as a draft, announces it and confirms it as pending.
//
// store.ErrOpenSignalExists is returned untouched when the tenant already has a
// live signal. A delivery failure leaves the signal broadcast_failed and returns
// ErrDeliveryFailed. A *GhostWriteError is returned when the message went out but
// neither pending nor broadcast_failed could be recorded.
func (m *Manager) Open(ctx context.Context, tenantID, chatID string, p *model.Proposal) (*model.Signal, error) {
	sig := fromProposal(tenantID, p, m.now())
	id, err := m.store.CreateDraftSignal(ctx, sig)
	if err != nil {
		return nil, err
	}
	sig.ID = id
	log := m.log.With(zap.String("tenant", tenantID), zap.String("signal", id), zap.String("strategy", sig.StrategyID))

	deliveryID, err := m.transport.Deliver(ctx, m.msgs.Entry(sig), chatID)

	// Once Deliver returns, its outcome is recorded even if ctx is cancelled meanwhile.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err != nil {
		log.Warn("entry delivery failed", zap.Error(err))
		failed, ferr := m.store.MarkBroadcastFailed(wctx, id, m.now())
		if ferr != nil {
			log.Error("mark broadcast_failed after delivery failure", zap.Error(ferr))
		}
		if failed {
			m.promote(wctx, tenantID)
		}
		sig.Status = model.StatusBroadcastFailed
		return sig, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	sig.DeliveryID = deliveryID

	postedAt := m.now()
	ok, cerr := m.store.ConfirmPending(wctx, id, deliveryID, postedAt)
	if cerr == nil && ok {
		sig.Status = model.StatusPending
		sig.PostedAt = postedAt
		m.narrate(wctx, sig, model.EventEntry, sig.Entry, sig.Snapshot, sig.Rationale)
		log.Info("signal opened",
			zap.String("direction", string(sig.Direction)), zap.Float64("entry", sig.Entry),
			zap.Float64("sl", sig.StopLoss), zap.String("delivery", deliveryID))
		return sig, nil
	}

	log.Warn("delivered signal not confirmed, compensating", zap.Bool("matched", ok), zap.Error(cerr))
	compensated, ferr := m.compensate(wctx, id)
	if compensated {
		sig.Status = model.StatusBroadcastFailed
		m.promote(wctx, tenantID)
		if cerr == nil {
			return sig, ErrNotConfirmed
		}
		return sig, fmt.Errorf("%w: %v", ErrNotConfirmed, cerr)
	}

	gerr := &GhostWriteError{SignalID: id, TenantID: tenantID, DeliveryID: deliveryID, Confirm: cerr, Compensate: ferr}
	log.Error("ghost signal: delivered but unrecorded",
		zap.Bool("manual_intervention", true), zap.String("delivery", deliveryID), zap.Error(gerr))
	return sig, gerr
}

// compensate moves an unconfirmed signal to broadcast_failed. A write that matches
// no row still counts when the record already reads broadcast_failed.
func (m *Manager) compensate(ctx context.Context, id string) (bool, error) {
	ok, err := m.store.MarkBroadcastFailed(ctx, id, m.now())
	if err != nil || ok {
		return ok, err
	}
	cur, err := m.store.GetSignal(ctx, id)
	if err != nil {
		return false, err
	}
	return cur.Status == model.StatusBroadcastFailed, nil
}

func fromProposal(tenantID string, p *model.Proposal, now time.Time) *model.Signal {
	sig := &model.Signal{
		TenantID:     tenantID,
		StrategyID:   p.StrategyID,
		Symbol:       p.Symbol,
		Timeframe:    p.Timeframe,
		Direction:    p.Direction,
		Status:       model.StatusDraft,
		Entry:        p.Entry,
		StopLoss:     p.StopLoss,
		EffectiveSL:  p.StopLoss,
		Snapshot:     p.Snapshot,
		ThesisStatus: model.ThesisIntact,
		Rationale:    p.Rationale,
		CreatedAt:    now,
	}
	n := copy(sig.TakeProfits[:], p.TakeProfits)
	sig.TPCount = n
	return sig
}

// Activate moves a pending signal to open on its first observed price.
func (m *Manager) Activate(ctx context.Context, sig *model.Signal) (bool, error) {
	ok, err := m.store.ActivateSignal(ctx, sig.ID)
	if err != nil {
		return false, fmt.Errorf("activate %s: %w", sig.ID, err)
	}
	if ok {
		sig.Status = model.StatusOpen
	}
	return ok, nil
}

// Breakeven lifts the effective stop to entry once. It reports whether this call did it.
func (m *Manager) Breakeven(ctx context.Context, sig *model.Signal, price float64) (bool, error) {
	at := m.now()
	ok, err := m.store.MarkBreakeven(ctx, sig.ID, at)
	if err != nil {
		return false, fmt.Errorf("breakeven %s: %w", sig.ID, err)
	}
	if !ok {
		return false, nil
	}
	sig.BreakevenTriggered = true
	sig.BreakevenAt = at
	if sig.Direction.Favorable(sig.EffectiveSL, sig.Entry) {
		sig.EffectiveSL = sig.Entry
	}
	m.narrate(ctx, sig, model.EventBreakeven, price, nil, fmt.Sprintf("stop moved to entry %.2f", sig.Entry))
	return true, nil
}

// LockStop advances the effective stop toward price. Moves against the position are ignored.
func (m *Manager) LockStop(ctx context.Context, sig *model.Signal, price float64) (bool, error) {
	ok, err := m.store.UpdateEffectiveStopLoss(ctx, sig.ID, price)
	if err != nil {
		return false, fmt.Errorf("lock stop %s: %w", sig.ID, err)
	}
	if ok {
		sig.EffectiveSL = price
	}
	return ok, nil
}

// TakeProfit marks level (1-based) as hit and ratchets the stop: to entry after
// TP1, to the previous target after later levels. Re-marking a hit level is a
// no-op and reports false.
func (m *Manager) TakeProfit(ctx context.Context, sig *model.Signal, level int, price float64) (bool, error) {
	if level < 1 || level > sig.TPCount {
		return false, fmt.Errorf("signal %s has no TP%d", sig.ID, level)
	}
	at := m.now()
	ok, err := m.store.MarkTakeProfitHit(ctx, sig.ID, level, at)
	if err != nil {
		return false, fmt.Errorf("mark TP%d %s: %w", level, sig.ID, err)
	}
	if !ok {
		return false, nil
	}
	tp := &sig.TakeProfits[level-1]
	tp.Hit = true
	tp.HitAt = at
	m.narrate(ctx, sig, model.EventTakeProfit, price, nil,
		fmt.Sprintf("TP%d %.2f reached (%d%%)", level, tp.Price, tp.Allocation))

	if level == 1 {
		if _, err := m.Breakeven(ctx, sig, price); err != nil {
			m.log.Warn("breakeven after TP1", zap.String("signal", sig.ID), zap.Error(err))
		}
		return true, nil
	}
	if _, err := m.LockStop(ctx, sig, sig.TakeProfits[level-2].Price); err != nil {
		m.log.Warn("stop ratchet after take-profit", zap.String("signal", sig.ID), zap.Int("level", level), zap.Error(err))
	}
	return true, nil
}

// Guidance records that a guidance message was sent for the signal.
func (m *Manager) Guidance(ctx context.Context, sig *model.Signal, typ model.NarrativeEventType, price float64, snap *model.Snapshot, text string) {
	at := m.now()
	if err := m.store.RecordGuidance(ctx, sig.ID, at); err != nil {
		m.log.Warn("record guidance", zap.String("signal", sig.ID), zap.Error(err))
	} else {
		sig.GuidanceCount++
		sig.LastGuidanceAt = at
	}
	m.narrate(ctx, sig, typ, price, snap, text)
}

// Close moves the signal to its terminal state and promotes a queued strategy.
// Only one caller closes a signal; the others get a nil result.
func (m *Manager) Close(ctx context.Context, sig *model.Signal, exit Exit, price float64) (*model.CloseResult, error) {
	res := Result(sig, exit, price, m.opts.PipSize, m.opts.Decimals, m.now())
	ok, err := m.store.CloseSignal(ctx, sig.ID, res)
	if err != nil {
		return nil, fmt.Errorf("close %s: %w", sig.ID, err)
	}
	if !ok {
		return nil, nil
	}
	sig.Status = res.Status
	sig.ClosePrice = res.Price
	sig.ResultDelta = res.Delta
	sig.ResultPips = res.Pips
	sig.ClosedAt = res.At

	m.log.Info("signal closed",
		zap.String("tenant", sig.TenantID), zap.String("signal", sig.ID), zap.String("exit", string(exit)),
		zap.String("status", string(res.Status)), zap.Float64("price", price), zap.Float64("pips", res.Pips))
	m.narrate(ctx, sig, model.EventClosed, price, nil,
		fmt.Sprintf("%s (%s) at %.2f, %+.1f pips", res.Status, exit, price, res.Pips))

	m.promote(ctx, sig.TenantID)
	return &res, nil
}

// promote hands the tenant to a queued strategy after any terminal transition.
func (m *Manager) promote(ctx context.Context, tenantID string) {
	if m.promoter == nil {
		return
	}
	if _, err := m.promoter.PromoteQueued(ctx, tenantID); err != nil {
		m.log.Error("promote queued strategy", zap.String("tenant", tenantID), zap.Error(err))
	}
}

func (m *Manager) narrate(ctx context.Context, sig *model.Signal, typ model.NarrativeEventType, price float64, snap *model.Snapshot, msg string) {
	err := m.store.AppendNarrative(ctx, &model.NarrativeEvent{
		SignalID: sig.ID,
		TenantID: sig.TenantID,
		Type:     typ,
		At:       m.now(),
		Price:    price,
		Snapshot: snap,
		Message:  msg,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warn("append narrative", zap.String("signal", sig.ID), zap.String("type", string(typ)), zap.Error(err))
	}
}
