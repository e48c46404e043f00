// Package milestone grants one-time notification rights to competing monitor workers.
//
// A caller may only send a milestone notification after Claim returned true.
// A false result means another worker owns it (or the store could not confirm
// the claim) and is not an error.
package milestone

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
)

// Store is the persistence the coordinator linearizes on.
type Store interface {
	ClaimMilestone(ctx context.Context, signalID, key string) (bool, error)
	IsMilestoneClaimed(ctx context.Context, signalID, key string) (bool, error)
	AdvanceZone(ctx context.Context, signalID string, kind model.ZoneKind, value int) (bool, error)
}

type Coordinator struct {
	store Store
	log   *zap.Logger
}

func NewCoordinator(st Store, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: st, log: log.Named("milestone")}
}

// Claim reports whether the caller won the right to announce key for the signal.
// Store failures suppress the notification.
func (c *Coordinator) Claim(ctx context.Context, signalID, key string) bool {
	ok, err := c.store.ClaimMilestone(ctx, signalID, key)
	if err != nil {
		c.log.Warn("milestone claim failed, suppressing notification",
			zap.String("signal", signalID), zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// IsAlreadyClaimed reports whether key was already announced. Store failures report true.
func (c *Coordinator) IsAlreadyClaimed(ctx context.Context, signalID, key string) bool {
	ok, err := c.store.IsMilestoneClaimed(ctx, signalID, key)
	if err != nil {
		c.log.Warn("milestone lookup failed, treating as claimed",
			zap.String("signal", signalID), zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

// ClaimZone announces zone for the signal at most once. The watermark only ever
// rises, so a lower zone arriving after a higher one is refused.
func (c *Coordinator) ClaimZone(ctx context.Context, sig *model.Signal, kind model.ZoneKind, zone int) bool {
	if zone <= 0 || zone <= watermark(sig, kind) {
		return false
	}
	moved, err := c.store.AdvanceZone(ctx, sig.ID, kind, zone)
	if err != nil {
		c.log.Warn("zone advance failed, suppressing notification",
			zap.String("signal", sig.ID), zap.String("kind", string(kind)), zap.Int("zone", zone), zap.Error(err))
		return false
	}
	if !moved {
		return false
	}
	setWatermark(sig, kind, zone)
	return c.Claim(ctx, sig.ID, ZoneKey(kind, zone))
}

func watermark(sig *model.Signal, kind model.ZoneKind) int {
	if kind == model.ZoneCaution {
		return sig.CautionZone
	}
	return sig.ProgressZone
}

func setWatermark(sig *model.Signal, kind model.ZoneKind, zone int) {
	if kind == model.ZoneCaution {
		sig.CautionZone = zone
		return
	}
	sig.ProgressZone = zone
}

// Milestone keys.
const (
	KeyBreakeven = "breakeven"
	KeyTimeout   = "timeout"
	KeyClosed    = "closed"
)

func TakeProfitKey(level int) string { return fmt.Sprintf("tp%d_hit", level) }

func ZoneKey(kind model.ZoneKind, zone int) string { return fmt.Sprintf("%s_z%d", kind, zone) }
