package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"SignalSentinel/internal/model"
)

// roundPrice rounds to the instrument's quoted precision.
func roundPrice(p float64, decimals int32) float64 {
	return decimal.NewFromFloat(p).Round(decimals).InexactFloat64()
}

// StopDistance is the larger of the volatility-scaled stop and the configured floor.
func StopDistance(atr, mult, minPips, pipSize float64) float64 {
	return math.Max(atr*mult, minPips*pipSize)
}

// ATRTargets places targets at ATR multiples from entry.
func ATRTargets(dir model.Direction, entry, atr float64, mults []float64) []float64 {
	out := make([]float64, 0, len(mults))
	for _, m := range mults {
		if m <= 0 {
			continue
		}
		out = append(out, entry+dir.Sign()*atr*m)
	}
	return out
}

// RTargets places targets at multiples of the initial risk distance.
func RTargets(dir model.Direction, entry, risk float64, mults []float64) []float64 {
	return ATRTargets(dir, entry, risk, mults)
}

// splitAllocations trims or pads the configured split to n levels and forces the sum to 100.
func splitAllocations(allocs []int, n int) []int {
	out := make([]int, n)
	sum := 0
	for i := 0; i < n; i++ {
		if i < len(allocs) && allocs[i] > 0 {
			out[i] = allocs[i]
		}
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 100 / n
		}
		sum = 100 / n * n
	}
	// Rescale, then give the rounding remainder to the first level.
	total := 0
	for i := range out {
		out[i] = out[i] * 100 / sum
		total += out[i]
	}
	out[0] += 100 - total
	return out
}

// Geometry is the raw risk layout before rounding and validation.
type Geometry struct {
	Direction model.Direction
	Entry     float64
	StopLoss  float64
	Targets   []float64
	Allocs    []int
}

// proposal rounds a geometry to instrument precision and validates it.
// An ill-formed layout returns an error and must not be published.
func (b *base) proposal(g Geometry, tf model.Timeframe, snap *model.Snapshot, rationale string) (*model.Proposal, error) {
	if len(g.Targets) == 0 {
		return nil, fmt.Errorf("no take-profit targets")
	}
	if len(g.Targets) > 3 {
		g.Targets = g.Targets[:3]
	}
	dec := b.deps.Instrument.Decimals
	allocs := splitAllocations(g.Allocs, len(g.Targets))

	p := &model.Proposal{
		StrategyID: b.id,
		Symbol:     b.symbol(),
		Timeframe:  tf,
		Direction:  g.Direction,
		Entry:      roundPrice(g.Entry, dec),
		StopLoss:   roundPrice(g.StopLoss, dec),
		Snapshot:   snap,
		Rationale:  rationale,
	}
	for i, t := range g.Targets {
		p.TakeProfits = append(p.TakeProfits, model.TakeProfitLevel{
			Price:      roundPrice(t, dec),
			Allocation: allocs[i],
		})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *base) tpMults() []float64 {
	return []float64{b.params.F(KeyTP1Mult), b.params.F(KeyTP2Mult), b.params.F(KeyTP3Mult)}
}

func (b *base) tpAllocs() []int {
	return []int{b.params.I(KeyTP1Alloc), b.params.I(KeyTP2Alloc), b.params.I(KeyTP3Alloc)}
}

func (b *base) minStop() float64 {
	return b.params.F(KeyMinSLPips) * b.deps.Instrument.PipSize
}
