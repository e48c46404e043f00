package model

import (
	"fmt"
	"time"
)

// Direction is the side of an advisory signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// Favorable reports whether moving from `from` to `to` is in the position's favor.
func (d Direction) Favorable(from, to float64) bool {
	if d == Sell {
		return to < from
	}
	return to > from
}

// Status is the lifecycle state of a signal.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending"
	StatusOpen            Status = "open"
	StatusWon             Status = "won"
	StatusLost            Status = "lost"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
	StatusBroadcastFailed Status = "broadcast_failed"
)

// OpenIsh reports whether the status counts against the one-open-signal limit.
func (s Status) OpenIsh() bool { return s == StatusPending || s == StatusOpen }

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusExpired, StatusCancelled, StatusBroadcastFailed:
		return true
	}
	return false
}

// ThesisStatus classifies whether the entry rationale still holds.
type ThesisStatus string

const (
	ThesisIntact    ThesisStatus = "intact"
	ThesisWeakening ThesisStatus = "weakening"
	ThesisBroken    ThesisStatus = "broken"
)

// TakeProfitLevel is one partial exit target.
type TakeProfitLevel struct {
	Price      float64   `json:"price"`
	Allocation int       `json:"allocation"` // percent of the position
	Hit        bool      `json:"hit"`
	HitAt      time.Time `json:"hit_at,omitempty"`
}

// Proposal is a strategy's decision before it becomes a persisted Signal.
type Proposal struct {
	StrategyID  string
	Symbol      string
	Timeframe   Timeframe
	Direction   Direction
	Entry       float64
	StopLoss    float64
	TakeProfits []TakeProfitLevel
	Snapshot    *Snapshot
	Rationale   string
}

// Validate checks that the risk geometry is directionally well formed
// and that allocations sum to exactly 100.
func (p *Proposal) Validate() error {
	if p.Direction != Buy && p.Direction != Sell {
		return fmt.Errorf("invalid direction %q", p.Direction)
	}
	n := len(p.TakeProfits)
	if n == 0 || n > 3 {
		return fmt.Errorf("expected 1-3 take-profit levels, got %d", n)
	}
	sum := 0
	for _, tp := range p.TakeProfits {
		if tp.Allocation < 0 {
			return fmt.Errorf("negative allocation %d", tp.Allocation)
		}
		sum += tp.Allocation
	}
	if sum != 100 {
		return fmt.Errorf("allocations sum to %d, want 100", sum)
	}

	d := p.Direction.Sign()
	if (p.Entry-p.StopLoss)*d <= 0 {
		return fmt.Errorf("%s stop-loss %.5f not beyond entry %.5f", p.Direction, p.StopLoss, p.Entry)
	}
	if (p.TakeProfits[0].Price-p.Entry)*d <= 0 {
		return fmt.Errorf("%s TP1 %.5f not beyond entry %.5f", p.Direction, p.TakeProfits[0].Price, p.Entry)
	}
	for i := 1; i < n; i++ {
		if (p.TakeProfits[i].Price-p.TakeProfits[i-1].Price)*d < 0 {
			return fmt.Errorf("%s TP%d %.5f out of order with TP%d %.5f",
				p.Direction, i+1, p.TakeProfits[i].Price, i, p.TakeProfits[i-1].Price)
		}
	}
	return nil
}

// Signal is the persisted advisory signal record.
type Signal struct {
	ID         string
	TenantID   string
	StrategyID string
	Symbol     string
	Timeframe  Timeframe
	Direction  Direction
	Status     Status
	DeliveryID string

	Entry       float64
	StopLoss    float64
	EffectiveSL float64
	TakeProfits [3]TakeProfitLevel
	TPCount     int

	BreakevenTriggered bool
	BreakevenAt        time.Time

	GuidanceCount  int
	LastGuidanceAt time.Time
	ProgressZone   int
	CautionZone    int

	Snapshot          *Snapshot
	ThesisStatus      ThesisStatus
	ThesisNotes       string
	ThesisChangedAt   time.Time
	RevalidationCount int
	LastRevalidatedAt time.Time
	TimeoutNotified   bool
	Rationale         string

	CreatedAt   time.Time
	PostedAt    time.Time
	ClosedAt    time.Time
	ResultDelta float64
	ResultPips  float64
	ClosePrice  float64
}

// Levels returns the populated take-profit levels.
func (s *Signal) Levels() []TakeProfitLevel {
	n := s.TPCount
	if n > len(s.TakeProfits) {
		n = len(s.TakeProfits)
	}
	return s.TakeProfits[:n]
}

// AnyTPHit reports whether at least one target was reached.
func (s *Signal) AnyTPHit() bool {
	for _, tp := range s.Levels() {
		if tp.Hit {
			return true
		}
	}
	return false
}

// Progress returns the fraction of the distance from entry to TP1 covered by price.
// Negative values mean price moved against the position.
func (s *Signal) Progress(price float64) float64 {
	if s.TPCount == 0 {
		return 0
	}
	dist := (s.TakeProfits[0].Price - s.Entry) * s.Direction.Sign()
	if dist <= 0 {
		return 0
	}
	return (price - s.Entry) * s.Direction.Sign() / dist
}

// Adversity returns the fraction of the distance from entry to the effective stop covered by price.
func (s *Signal) Adversity(price float64) float64 {
	dist := (s.Entry - s.EffectiveSL) * s.Direction.Sign()
	if dist <= 0 {
		return 0
	}
	return (s.Entry - price) * s.Direction.Sign() / dist
}

// StopHit reports whether price touched the effective stop.
func (s *Signal) StopHit(price float64) bool {
	if s.Direction == Sell {
		return price >= s.EffectiveSL
	}
	return price <= s.EffectiveSL
}

// TargetHit reports whether price reached the given take-profit price.
func (s *Signal) TargetHit(target, price float64) bool {
	if s.Direction == Sell {
		return price <= target
	}
	return price >= target
}

// ClosedSignal is the minimal view of the most recent terminal signal.
type ClosedSignal struct {
	ID       string
	Status   Status
	ClosedAt time.Time
	Pips     float64
}
