// Package botswitch defers strategy switches until the tenant is flat.
package botswitch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/store"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Store is the bot selection persistence the queue needs.
type Store interface {
	BotSelection(ctx context.Context, tenantID string) (model.BotSelection, error)
	EnsureActive(ctx context.Context, tenantID, strategyID string) error
	RequestSwitch(ctx context.Context, tenantID, strategyID string) (store.SwitchOutcome, error)
	PromoteQueued(ctx context.Context, tenantID string) (string, error)
	ClearQueuedStrategy(ctx context.Context, tenantID string) error
}

// Catalog is the set of strategy ids that may be selected.
type Catalog interface {
	Known(id string) bool
	Default() string
}

// Queue resolves the active strategy and holds switch requests made while a signal is live.
type Queue struct {
	store   Store
	catalog Catalog
	log     *zap.Logger
}

func New(st Store, cat Catalog, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{store: st, catalog: cat, log: log.Named("botswitch")}
}

// Active returns the tenant's active strategy id, seeding the catalog default
// for a tenant that never selected one.
func (q *Queue) Active(ctx context.Context, tenantID string) (string, error) {
	sel, err := q.store.BotSelection(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load selection: %w", err)
	}
	if sel.Active != "" {
		return sel.Active, nil
	}
	def := q.catalog.Default()
	if err := q.store.EnsureActive(ctx, tenantID, def); err != nil {
		return "", fmt.Errorf("seed active strategy: %w", err)
	}
	return def, nil
}

// Seed sets the initial active strategy for a tenant without overwriting an existing selection.
func (q *Queue) Seed(ctx context.Context, tenantID, strategyID string) error {
	if strategyID == "" {
		strategyID = q.catalog.Default()
	}
	if !q.catalog.Known(strategyID) {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, strategyID)
	}
	return q.store.EnsureActive(ctx, tenantID, strategyID)
}

// Selection returns the tenant's active and queued ids.
func (q *Queue) Selection(ctx context.Context, tenantID string) (model.BotSelection, error) {
	return q.store.BotSelection(ctx, tenantID)
}

// SetActive switches immediately when the tenant has no live signal; otherwise the
// request is queued and the outcome names the blocking signal.
func (q *Queue) SetActive(ctx context.Context, tenantID, strategyID string) (store.SwitchOutcome, error) {
	if !q.catalog.Known(strategyID) {
		return store.SwitchOutcome{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategyID)
	}
	out, err := q.store.RequestSwitch(ctx, tenantID, strategyID)
	if err != nil {
		return out, fmt.Errorf("request switch: %w", err)
	}
	if out.Deferred {
		q.log.Info("strategy switch queued",
			zap.String("tenant", tenantID), zap.String("queued", strategyID),
			zap.String("active", out.Selection.Active), zap.String("blocked_by", out.BlockedBy))
	} else {
		q.log.Info("strategy switched", zap.String("tenant", tenantID), zap.String("active", strategyID))
	}
	return out, nil
}

// PromoteQueued moves a queued strategy to active. Called once per signal closure;
// with nothing queued it does nothing and returns "".
func (q *Queue) PromoteQueued(ctx context.Context, tenantID string) (string, error) {
	id, err := q.store.PromoteQueued(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("promote queued strategy: %w", err)
	}
	if id != "" {
		q.log.Info("queued strategy promoted", zap.String("tenant", tenantID), zap.String("active", id))
	}
	return id, nil
}

// CancelQueued drops a pending switch request.
func (q *Queue) CancelQueued(ctx context.Context, tenantID string) error {
	return q.store.ClearQueuedStrategy(ctx, tenantID)
}
