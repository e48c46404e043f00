package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SignalSentinel/internal/model"
)

const signalColumns = `id, tenant_id, strategy_id, symbol, timeframe, direction, status, delivery_id,
	entry, stop_loss, effective_sl,
	tp1_price, tp1_alloc, tp1_hit, tp1_hit_at,
	tp2_price, tp2_alloc, tp2_hit, tp2_hit_at,
	tp3_price, tp3_alloc, tp3_hit, tp3_hit_at,
	tp_count, breakeven_triggered, breakeven_at,
	guidance_count, last_guidance_at, progress_zone, caution_zone,
	snapshot, thesis_status, thesis_notes, thesis_changed_at, revalidation_count, last_revalidated_at,
	timeout_notified, rationale, created_at, posted_at, closed_at, result_delta, result_pips, close_price`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*model.Signal, error) {
	var (
		sig                               model.Signal
		tf, dir, status, thesis, snapshot string
		tpHit                             [3]int
		tpHitAt                           [3]int64
		breakeven, timeout                int
		beAt, guidAt, thesisAt, revalAt   int64
		createdAt, postedAt, closedAt     int64
	)
	err := row.Scan(
		&sig.ID, &sig.TenantID, &sig.StrategyID, &sig.Symbol, &tf, &dir, &status, &sig.DeliveryID,
		&sig.Entry, &sig.StopLoss, &sig.EffectiveSL,
		&sig.TakeProfits[0].Price, &sig.TakeProfits[0].Allocation, &tpHit[0], &tpHitAt[0],
		&sig.TakeProfits[1].Price, &sig.TakeProfits[1].Allocation, &tpHit[1], &tpHitAt[1],
		&sig.TakeProfits[2].Price, &sig.TakeProfits[2].Allocation, &tpHit[2], &tpHitAt[2],
		&sig.TPCount, &breakeven, &beAt,
		&sig.GuidanceCount, &guidAt, &sig.ProgressZone, &sig.CautionZone,
		&snapshot, &thesis, &sig.ThesisNotes, &thesisAt, &sig.RevalidationCount, &revalAt,
		&timeout, &sig.Rationale, &createdAt, &postedAt, &closedAt, &sig.ResultDelta, &sig.ResultPips, &sig.ClosePrice,
	)
	if err != nil {
		return nil, err
	}
	sig.Timeframe = model.Timeframe(tf)
	sig.Direction = model.Direction(dir)
	sig.Status = model.Status(status)
	sig.ThesisStatus = model.ThesisStatus(thesis)
	for i := range sig.TakeProfits {
		sig.TakeProfits[i].Hit = tpHit[i] == 1
		sig.TakeProfits[i].HitAt = fromUnix(tpHitAt[i])
	}
	sig.BreakevenTriggered = breakeven == 1
	sig.BreakevenAt = fromUnix(beAt)
	sig.LastGuidanceAt = fromUnix(guidAt)
	sig.ThesisChangedAt = fromUnix(thesisAt)
	sig.LastRevalidatedAt = fromUnix(revalAt)
	sig.TimeoutNotified = timeout == 1
	sig.CreatedAt = fromUnix(createdAt)
	sig.PostedAt = fromUnix(postedAt)
	sig.ClosedAt = fromUnix(closedAt)

	sig.Snapshot = &model.Snapshot{}
	if err := json.Unmarshal([]byte(snapshot), sig.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", sig.ID, err)
	}
	return &sig, nil
}

func encodeSnapshot(s *model.Snapshot) (string, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateDraftSignal inserts sig as a draft. It refuses when the tenant already has a
// draft, pending or open signal and returns ErrOpenSignalExists.
func (s *Store) CreateDraftSignal(ctx context.Context, sig *model.Signal) (string, error) {
	if sig.TenantID == "" {
		return "", ErrTenantRequired
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	if sig.EffectiveSL == 0 {
		sig.EffectiveSL = sig.StopLoss
	}
	if sig.ThesisStatus == "" {
		sig.ThesisStatus = model.ThesisIntact
	}
	sig.Status = model.StatusDraft

	snap, err := encodeSnapshot(sig.Snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	tp := sig.TakeProfits

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM signals WHERE tenant_id = ? AND status IN ('draft','pending','open')`,
			sig.TenantID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return ErrOpenSignalExists
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO signals
			(id, tenant_id, strategy_id, symbol, timeframe, direction, status,
			 entry, stop_loss, effective_sl,
			 tp1_price, tp1_alloc, tp2_price, tp2_alloc, tp3_price, tp3_alloc, tp_count,
			 snapshot, thesis_status, thesis_changed_at, rationale, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			sig.ID, sig.TenantID, sig.StrategyID, sig.Symbol, string(sig.Timeframe), string(sig.Direction), string(sig.Status),
			sig.Entry, sig.StopLoss, sig.EffectiveSL,
			tp[0].Price, tp[0].Allocation, tp[1].Price, tp[1].Allocation, tp[2].Price, tp[2].Allocation, sig.TPCount,
			snap, string(sig.ThesisStatus), sig.CreatedAt.Unix(), sig.Rationale, sig.CreatedAt.Unix(),
		)
		if isUniqueViolation(err) {
			return ErrOpenSignalExists
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return sig.ID, nil
}

// ConfirmPending moves a draft to pending and stores the delivery receipt.
func (s *Store) ConfirmPending(ctx context.Context, id, deliveryID string, at time.Time) (bool, error) {
	return changed(s.db.ExecContext(ctx,
		`UPDATE signals SET status = 'pending', delivery_id = ?, posted_at = ? WHERE id = ? AND status = 'draft'`,
		deliveryID, at.Unix(), id))
}

// MarkBroadcastFailed removes a draft (or an unconfirmed pending) signal from the open set.
func (s *Store) MarkBroadcastFailed(ctx context.Context, id string, at time.Time) (bool, error) {
	return changed(s.db.ExecContext(ctx,
		`UPDATE signals SET status = 'broadcast_failed', closed_at = ? WHERE id = ? AND status IN ('draft','pending')`,
		at.Unix(), id))
}

// ActivateSignal moves a pending signal to open.
func (s *Store) ActivateSignal(ctx context.Context, id string) (bool, error) {
	return changed(s.db.ExecContext(ctx,
		`UPDATE signals SET status = 'open' WHERE id = ? AND status = 'pending'`, id))
}

// ReapStaleDrafts marks drafts created before cutoff as broadcast_failed and
// returns the tenant of each reaped draft, one entry per signal.
// A draft only survives that long when its process died mid-broadcast.
func (s *Store) ReapStaleDrafts(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE signals SET status = 'broadcast_failed', closed_at = ?
		WHERE status = 'draft' AND created_at < ? RETURNING tenant_id`,
		time.Now().Unix(), cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

// GetSignal loads one signal by id.
func (s *Store) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sig, err
}

// GetOpenSignal returns the tenant's pending or open signal, or nil when flat.
func (s *Store) GetOpenSignal(ctx context.Context, tenantID string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE tenant_id = ? AND status IN ('pending','open') LIMIT 1`, tenantID)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sig, err
}

// ListOpenSignals returns every pending or open signal across tenants.
func (s *Store) ListOpenSignals(ctx context.Context) ([]*model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE status IN ('pending','open') ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// RecentSignals returns the tenant's latest signals, newest first.
func (s *Store) RecentSignals(ctx context.Context, tenantID string, limit int) ([]*model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals
		WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// DailyRealizedPnL sums result_pips of the tenant's signals closed since the given instant.
func (s *Store) DailyRealizedPnL(ctx context.Context, tenantID string, since time.Time) (float64, error) {
	var sum float64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(result_pips), 0) FROM signals
		WHERE tenant_id = ? AND status IN ('won','lost','expired','cancelled') AND closed_at >= ?`,
		tenantID, since.Unix()).Scan(&sum)
	return sum, err
}

// LastClosedSignal returns the tenant's most recently closed signal, or nil.
func (s *Store) LastClosedSignal(ctx context.Context, tenantID string) (*model.ClosedSignal, error) {
	var (
		c        model.ClosedSignal
		status   string
		closedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, status, closed_at, result_pips FROM signals
		WHERE tenant_id = ? AND status IN ('won','lost','expired','cancelled')
		ORDER BY closed_at DESC LIMIT 1`, tenantID).Scan(&c.ID, &status, &closedAt, &c.Pips)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Status = model.Status(status)
	c.ClosedAt = fromUnix(closedAt)
	return &c, nil
}

// StrategyActivity counts the strategy's delivered signals created since `since` and
// returns the creation time of its latest delivered signal (zero if none).
func (s *Store) StrategyActivity(ctx context.Context, tenantID, strategyID string, since time.Time) (int, time.Time, error) {
	var (
		n    int
		last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM signals
		WHERE tenant_id = ? AND strategy_id = ? AND status NOT IN ('draft','broadcast_failed')`,
		since.Unix(), tenantID, strategyID).Scan(&n, &last)
	if err != nil {
		return 0, time.Time{}, err
	}
	var lastAt time.Time
	if last.Valid {
		lastAt = fromUnix(last.Int64)
	}
	return n, lastAt, nil
}

// UpdateEffectiveStopLoss moves the effective stop only in the position's favor.
// It reports whether the stored value changed.
func (s *Store) UpdateEffectiveStopLoss(ctx context.Context, id string, price float64) (bool, error) {
	return changed(s.db.ExecContext(ctx, `UPDATE signals SET effective_sl = ?
		WHERE id = ? AND status IN ('pending','open')
		  AND ((direction = 'BUY' AND effective_sl < ?) OR (direction = 'SELL' AND effective_sl > ?))`,
		price, id, price, price))
}

// MarkBreakeven sets the breakeven flag once and lifts the effective stop to entry
// unless it is already beyond it.
func (s *Store) MarkBreakeven(ctx context.Context, id string, at time.Time) (bool, error) {
	return changed(s.db.ExecContext(ctx, `UPDATE signals SET
			breakeven_triggered = 1,
			breakeven_at = ?,
			effective_sl = CASE
				WHEN direction = 'BUY' AND effective_sl < entry THEN entry
				WHEN direction = 'SELL' AND effective_sl > entry THEN entry
				ELSE effective_sl END
		WHERE id = ? AND breakeven_triggered = 0 AND status IN ('pending','open')`,
		at.Unix(), id))
}

// MarkTakeProfitHit flags level (1-3) as hit. Re-marking a hit level is a no-op.
func (s *Store) MarkTakeProfitHit(ctx context.Context, id string, level int, at time.Time) (bool, error) {
	if level < 1 || level > 3 {
		return false, fmt.Errorf("take-profit level %d out of range", level)
	}
	q := fmt.Sprintf(`UPDATE signals SET tp%[1]d_hit = 1, tp%[1]d_hit_at = ?
		WHERE id = ? AND tp%[1]d_hit = 0 AND tp_count >= %[1]d AND status IN ('pending','open')`, level)
	return changed(s.db.ExecContext(ctx, q, at.Unix(), id))
}

// AdvanceZone raises the progress or caution watermark to value if it is higher
// than the stored one. It reports whether the watermark moved.
func (s *Store) AdvanceZone(ctx context.Context, id string, kind model.ZoneKind, value int) (bool, error) {
	var col string
	switch kind {
	case model.ZoneProgress:
		col = "progress_zone"
	case model.ZoneCaution:
		col = "caution_zone"
	default:
		return false, fmt.Errorf("unknown zone kind %q", kind)
	}
	q := fmt.Sprintf(`UPDATE signals SET %[1]s = ? WHERE id = ? AND %[1]s < ?`, col)
	return changed(s.db.ExecContext(ctx, q, value, id, value))
}

// RecordGuidance bumps the guidance counter.
func (s *Store) RecordGuidance(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE signals SET guidance_count = guidance_count + 1, last_guidance_at = ? WHERE id = ?`,
		at.Unix(), id)
	return err
}

// SetThesisStatus records a revalidation. The change timestamp moves only when the
// classification differs from the stored one; the counter always increments.
// It reports whether the classification changed.
func (s *Store) SetThesisStatus(ctx context.Context, id string, status model.ThesisStatus, notes string, at time.Time) (bool, error) {
	var transitioned bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, `SELECT thesis_status FROM signals WHERE id = ?`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		transitioned = current != string(status)
		_, err := tx.ExecContext(ctx, `UPDATE signals SET
				thesis_status = ?,
				thesis_notes = ?,
				thesis_changed_at = CASE WHEN ? THEN ? ELSE thesis_changed_at END,
				revalidation_count = revalidation_count + 1,
				last_revalidated_at = ?
			WHERE id = ?`,
			string(status), notes, boolInt(transitioned), at.Unix(), at.Unix(), id)
		return err
	})
	return transitioned, err
}

// MarkTimeoutNotified sets the timeout flag once. Only the first caller gets true.
func (s *Store) MarkTimeoutNotified(ctx context.Context, id string) (bool, error) {
	return changed(s.db.ExecContext(ctx,
		`UPDATE signals SET timeout_notified = 1 WHERE id = ? AND timeout_notified = 0`, id))
}

// CloseSignal moves a pending or open signal to a terminal status.
// Only one caller can close a given signal; the others get false.
func (s *Store) CloseSignal(ctx context.Context, id string, r model.CloseResult) (bool, error) {
	if !r.Status.Terminal() || r.Status == model.StatusBroadcastFailed {
		return false, fmt.Errorf("invalid close status %q", r.Status)
	}
	return changed(s.db.ExecContext(ctx, `UPDATE signals SET
			status = ?, close_price = ?, result_delta = ?, result_pips = ?, closed_at = ?
		WHERE id = ? AND status IN ('pending','open')`,
		string(r.Status), r.Price, r.Delta, r.Pips, r.At.Unix(), id))
}
