package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveryFailed means the transport rejected the entry message; the signal is broadcast_failed.
	ErrDeliveryFailed = errors.New("signal delivery failed")
	// ErrNotConfirmed means the entry message went out but pending could not be recorded;
	// the signal was compensated to broadcast_failed.
	ErrNotConfirmed = errors.New("delivered signal not confirmed")
	// ErrManualIntervention marks a state the engine cannot repair on its own.
	ErrManualIntervention = errors.New("manual intervention required")
)

// GhostWriteError reports a signal that reached subscribers while its record is
// stuck in draft: both the pending confirmation and the compensating
// broadcast_failed write failed.
type GhostWriteError struct {
	SignalID   string
	TenantID   string
	DeliveryID string
	Confirm    error // nil when the confirmation matched no row
	Compensate error // nil when the compensation matched no row
}

func (e *GhostWriteError) Error() string {
	return fmt.Sprintf("ghost signal %s (tenant %s, delivery %s): confirm: %v; compensate: %v",
		e.SignalID, e.TenantID, e.DeliveryID, orNoRow(e.Confirm), orNoRow(e.Compensate))
}

func (e *GhostWriteError) Unwrap() error { return ErrManualIntervention }

func orNoRow(err error) any {
	if err == nil {
		return "no row updated"
	}
	return err
}
