package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
)

// Aggressive trades M15 pullbacks in the direction of the EMA50 and needs only
// two of five confirmations.
type Aggressive struct {
	base
}

func NewAggressive(deps Deps) Strategy {
	return &Aggressive{base: newBase(deps, "aggressive", "Aggressive Momentum", model.M15, false, withDefaults(map[string]float64{
		KeyMinConfirmations: 2,
		KeySLATRMult:        1.0,
		KeyTP1Mult:          1.2,
		KeyTP2Mult:          2.0,
		KeyTP3Mult:          2.5,
		KeyTP1Alloc:         50,
		KeyTP2Alloc:         30,
		KeyTP3Alloc:         20,
		KeyBreakevenTrigger: 0.7,
	}))}
}

func (s *Aggressive) CheckForSignals(ctx context.Context, tf model.Timeframe) (*model.Proposal, error) {
	tf = s.timeframe(tf)
	m, err := s.fetchMomentum(ctx, tf, false)
	if err != nil {
		return nil, err
	}
	dir, err := directionFrom(m.Price - m.EMAFast)
	if err != nil {
		return nil, nil
	}

	confs := s.momentumConfirmations(dir, m)
	n := countConfirmations(confs)
	need := s.params.I(KeyMinConfirmations)
	if n < need {
		s.log().Debug("not enough confirmations", zap.String("direction", string(dir)), zap.Int("have", n), zap.Int("need", need))
		return nil, nil
	}

	slDist := StopDistance(m.ATR, s.params.F(KeySLATRMult), s.params.F(KeyMinSLPips), s.deps.Instrument.PipSize)
	g := Geometry{
		Direction: dir,
		Entry:     m.Price,
		StopLoss:  m.Price - dir.Sign()*slDist,
		Targets:   ATRTargets(dir, m.Price, m.ATR, s.tpMults()),
		Allocs:    s.tpAllocs(),
	}
	rationale := fmt.Sprintf("price %s EMA%d; %d/%d confirmations: %s",
		aboveBelow(dir), s.params.I(KeyEMAFast), n, len(confs), describe(confs))
	p, err := s.proposal(g, tf, m.snapshot(false), rationale)
	if err != nil {
		s.log().Info("discarding ill-formed proposal", zap.Error(err))
		return nil, nil
	}
	return p, nil
}

func (s *Aggressive) Snapshot(ctx context.Context, _ model.Direction) (*model.Snapshot, error) {
	m, err := s.fetchMomentum(ctx, s.tf, false)
	if err != nil {
		return nil, err
	}
	return m.snapshot(false), nil
}

func aboveBelow(dir model.Direction) string {
	if dir == model.Buy {
		return "above"
	}
	return "below"
}
