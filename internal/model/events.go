package model

import "time"

// NarrativeEventType labels an append-only narrative entry.
type NarrativeEventType string

const (
	EventEntry        NarrativeEventType = "entry"
	EventGuidance     NarrativeEventType = "guidance"
	EventTakeProfit   NarrativeEventType = "take_profit"
	EventBreakeven    NarrativeEventType = "breakeven"
	EventRevalidation NarrativeEventType = "revalidation"
	EventTimeout      NarrativeEventType = "timeout"
	EventClosed       NarrativeEventType = "closed"
)

// NarrativeEvent is one immutable entry in a signal's story.
type NarrativeEvent struct {
	ID       string
	SignalID string
	TenantID string
	Type     NarrativeEventType
	At       time.Time
	Price    float64
	Snapshot *Snapshot
	Message  string
}

// BotSelection is a tenant's active strategy and an optional queued switch.
type BotSelection struct {
	TenantID string
	Active   string
	Queued   string
}

// GuardrailState is the derived input of the guardrail evaluator.
type GuardrailState struct {
	Now          time.Time
	DailyPnLPips float64
	LastClosed   *ClosedSignal
	SignalsToday int       // for the evaluating strategy
	LastSignalAt time.Time // for the evaluating strategy, zero if none
}

// ZoneKind selects one of the two guidance watermarks on a signal.
type ZoneKind string

const (
	ZoneProgress ZoneKind = "progress"
	ZoneCaution  ZoneKind = "caution"
)

// CloseResult is the outcome recorded when a signal reaches a terminal state.
type CloseResult struct {
	Status Status
	Price  float64
	Delta  float64 // direction-signed price delta
	Pips   float64
	At     time.Time
}
