// Package revalidation re-scores the entry thesis of signals that have gone
// nowhere, and raises the one-time maximum-hold notice.
package revalidation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
)

// Store persists thesis classifications and the timeout flag.
type Store interface {
	SetThesisStatus(ctx context.Context, id string, status model.ThesisStatus, notes string, at time.Time) (bool, error)
	MarkTimeoutNotified(ctx context.Context, id string) (bool, error)
}

// Snapshotter re-derives the indicator basket a strategy recorded at entry.
type Snapshotter interface {
	Snapshot(ctx context.Context, dir model.Direction) (*model.Snapshot, error)
}

type Options struct {
	StagnantAfter   time.Duration // hold time before the first revalidation
	RevalidateEvery time.Duration // minimum gap between revalidations
	MaxHold         time.Duration // one-time timeout notice; zero disables
}

// Outcome describes what a Check did.
type Outcome struct {
	Evaluated    bool
	Status       model.ThesisStatus
	Notes        string
	Transitioned bool
	Snapshot     *model.Snapshot
	TimedOut     bool // this call won the one-time timeout notice
}

type Monitor struct {
	store Store
	opts  Options
	log   *zap.Logger
}

func New(st Store, opts Options, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{store: st, opts: opts, log: log.Named("revalidation")}
}

// Due reports whether sig should be re-scored at now: open past the stagnation
// threshold without any target hit, and not re-scored within RevalidateEvery.
func (m *Monitor) Due(sig *model.Signal, now time.Time) bool {
	if sig.Status != model.StatusOpen || sig.AnyTPHit() || sig.PostedAt.IsZero() {
		return false
	}
	if now.Sub(sig.PostedAt) < m.opts.StagnantAfter {
		return false
	}
	return sig.LastRevalidatedAt.IsZero() || now.Sub(sig.LastRevalidatedAt) >= m.opts.RevalidateEvery
}

// Check revalidates sig when due and fires the timeout notice once max hold is reached.
// A snapshot failure is returned so the caller retries next tick; the timeout
// check still runs.
func (m *Monitor) Check(ctx context.Context, sig *model.Signal, s Snapshotter, now time.Time) (Outcome, error) {
	var out Outcome
	var snapErr error
	if m.Due(sig, now) {
		snapErr = m.revalidate(ctx, sig, s, now, &out)
	}

	if m.opts.MaxHold > 0 && !sig.TimeoutNotified && !sig.PostedAt.IsZero() && now.Sub(sig.PostedAt) >= m.opts.MaxHold {
		won, err := m.store.MarkTimeoutNotified(ctx, sig.ID)
		if err != nil {
			return out, fmt.Errorf("mark timeout %s: %w", sig.ID, err)
		}
		sig.TimeoutNotified = true
		out.TimedOut = won
	}
	return out, snapErr
}

func (m *Monitor) revalidate(ctx context.Context, sig *model.Signal, s Snapshotter, now time.Time, out *Outcome) error {
	cur, err := s.Snapshot(ctx, sig.Direction)
	if err != nil {
		m.log.Warn("revalidation snapshot unavailable", zap.String("signal", sig.ID), zap.Error(err))
		return fmt.Errorf("snapshot %s: %w", sig.ID, err)
	}
	status, notes := Classify(sig.Direction, sig.Snapshot, cur)
	transitioned, err := m.store.SetThesisStatus(ctx, sig.ID, status, notes, now)
	if err != nil {
		return fmt.Errorf("set thesis %s: %w", sig.ID, err)
	}

	sig.ThesisStatus = status
	sig.ThesisNotes = notes
	sig.RevalidationCount++
	sig.LastRevalidatedAt = now
	if transitioned {
		sig.ThesisChangedAt = now
	}
	*out = Outcome{Evaluated: true, Status: status, Notes: notes, Transitioned: transitioned, Snapshot: cur}
	m.log.Info("thesis revalidated", zap.String("signal", sig.ID), zap.String("status", string(status)),
		zap.Bool("transitioned", transitioned), zap.String("notes", notes))
	return nil
}
