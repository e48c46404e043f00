package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
)

// Conservative trades H1 only when EMA50 and EMA200 agree with price, the trend
// is strong, and at least three confirmations line up. Targets are R multiples.
type Conservative struct {
	base
}

func NewConservative(deps Deps) Strategy {
	return &Conservative{base: newBase(deps, "conservative", "Conservative Trend", model.H1, false, withDefaults(map[string]float64{
		KeyMinConfirmations:    3,
		KeyADXMin:              25,
		KeySLATRMult:           1.5,
		KeyTP1Mult:             1.0,
		KeyTP2Mult:             2.0,
		KeyTP3Mult:             3.0,
		KeyTP1Alloc:            40,
		KeyTP2Alloc:            30,
		KeyTP3Alloc:            30,
		KeyBreakevenTrigger:    0.6,
		KeyLossCooldownMinutes: 60,
	}))}
}

func (s *Conservative) CheckForSignals(ctx context.Context, tf model.Timeframe) (*model.Proposal, error) {
	tf = s.timeframe(tf)
	m, err := s.fetchMomentum(ctx, tf, true)
	if err != nil {
		return nil, err
	}

	var dir model.Direction
	switch {
	case m.Price > m.EMAFast && m.EMAFast > m.EMASlow:
		dir = model.Buy
	case m.Price < m.EMAFast && m.EMAFast < m.EMASlow:
		dir = model.Sell
	default:
		return nil, nil
	}
	if m.ADX.ADX < s.params.F(KeyADXMin) {
		s.log().Debug("trend too weak", zap.Float64("adx", m.ADX.ADX))
		return nil, nil
	}

	confs := s.momentumConfirmations(dir, m)
	n := countConfirmations(confs)
	if n < s.params.I(KeyMinConfirmations) {
		return nil, nil
	}

	risk := StopDistance(m.ATR, s.params.F(KeySLATRMult), s.params.F(KeyMinSLPips), s.deps.Instrument.PipSize)
	g := Geometry{
		Direction: dir,
		Entry:     m.Price,
		StopLoss:  m.Price - dir.Sign()*risk,
		Targets:   RTargets(dir, m.Price, risk, s.tpMults()),
		Allocs:    s.tpAllocs(),
	}
	rationale := fmt.Sprintf("EMA%d/EMA%d aligned %s, ADX %.1f; %d/%d confirmations: %s",
		s.params.I(KeyEMAFast), s.params.I(KeyEMASlow), dir, m.ADX.ADX, n, len(confs), describe(confs))
	p, err := s.proposal(g, tf, m.snapshot(true), rationale)
	if err != nil {
		s.log().Info("discarding ill-formed proposal", zap.Error(err))
		return nil, nil
	}
	return p, nil
}

func (s *Conservative) Snapshot(ctx context.Context, _ model.Direction) (*model.Snapshot, error) {
	m, err := s.fetchMomentum(ctx, s.tf, true)
	if err != nil {
		return nil, err
	}
	return m.snapshot(true), nil
}
