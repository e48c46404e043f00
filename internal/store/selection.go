package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"SignalSentinel/internal/model"
)

// StrategyConfig returns the tenant's flat key/value overrides for a strategy.
func (s *Store) StrategyConfig(ctx context.Context, tenantID, strategyID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM strategy_config WHERE tenant_id = ? AND strategy_id = ?`, tenantID, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetStrategyConfig upserts one configuration value.
func (s *Store) SetStrategyConfig(ctx context.Context, tenantID, strategyID, key, value string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO strategy_config (tenant_id, strategy_id, key, value, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (tenant_id, strategy_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tenantID, strategyID, key, value, time.Now().Unix())
	return err
}

// DeleteStrategyConfig removes an override so the strategy default applies again.
func (s *Store) DeleteStrategyConfig(ctx context.Context, tenantID, strategyID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM strategy_config WHERE tenant_id = ? AND strategy_id = ? AND key = ?`, tenantID, strategyID, key)
	return err
}

// BotSelection returns the tenant's active and queued strategy ids.
// A tenant without a row has an empty selection.
func (s *Store) BotSelection(ctx context.Context, tenantID string) (model.BotSelection, error) {
	sel := model.BotSelection{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx,
		`SELECT active, queued FROM bot_selection WHERE tenant_id = ?`, tenantID).Scan(&sel.Active, &sel.Queued)
	if errors.Is(err, sql.ErrNoRows) {
		return sel, nil
	}
	return sel, err
}

func upsertSelection(ctx context.Context, tx *sql.Tx, tenantID, active, queued string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bot_selection (tenant_id, active, queued, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT (tenant_id) DO UPDATE SET active = excluded.active, queued = excluded.queued, updated_at = excluded.updated_at`,
		tenantID, active, queued, time.Now().Unix())
	return err
}

// EnsureActive seeds the active strategy for a tenant that has none.
func (s *Store) EnsureActive(ctx context.Context, tenantID, strategyID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO bot_selection (tenant_id, active, queued, updated_at)
		VALUES (?, ?, '', ?) ON CONFLICT (tenant_id) DO NOTHING`, tenantID, strategyID, time.Now().Unix())
	return err
}

// ClearQueuedStrategy drops a pending switch request.
func (s *Store) ClearQueuedStrategy(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bot_selection SET queued = '', updated_at = ? WHERE tenant_id = ?`, time.Now().Unix(), tenantID)
	return err
}

// SwitchOutcome is the result of RequestSwitch.
type SwitchOutcome struct {
	Selection model.BotSelection
	Deferred  bool
	BlockedBy string // id of the open signal when Deferred
}

// RequestSwitch activates strategyID when the tenant has no live signal, otherwise queues it.
// The check and the write run in one transaction so a concurrent close cannot strand the request.
func (s *Store) RequestSwitch(ctx context.Context, tenantID, strategyID string) (SwitchOutcome, error) {
	if tenantID == "" {
		return SwitchOutcome{}, ErrTenantRequired
	}
	out := SwitchOutcome{Selection: model.BotSelection{TenantID: tenantID}}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var blocking string
		err := tx.QueryRowContext(ctx, `SELECT id FROM signals
			WHERE tenant_id = ? AND status IN ('draft','pending','open') LIMIT 1`, tenantID).Scan(&blocking)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		err = tx.QueryRowContext(ctx, `SELECT active, queued FROM bot_selection WHERE tenant_id = ?`, tenantID).
			Scan(&out.Selection.Active, &out.Selection.Queued)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if blocking == "" {
			out.Selection.Active = strategyID
			out.Selection.Queued = ""
			return upsertSelection(ctx, tx, tenantID, strategyID, "")
		}
		out.Deferred = true
		out.BlockedBy = blocking
		out.Selection.Queued = strategyID
		return upsertSelection(ctx, tx, tenantID, out.Selection.Active, strategyID)
	})
	return out, err
}

// PromoteQueued copies a queued strategy into active and clears the queue.
// It returns the promoted id, or "" when nothing was queued.
func (s *Store) PromoteQueued(ctx context.Context, tenantID string) (string, error) {
	var promoted string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT queued FROM bot_selection WHERE tenant_id = ?`, tenantID).Scan(&promoted)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil || promoted == "" {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE bot_selection SET active = queued, queued = '', updated_at = ? WHERE tenant_id = ?`,
			time.Now().Unix(), tenantID)
		return err
	})
	return promoted, err
}
