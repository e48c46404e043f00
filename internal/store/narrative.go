package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SignalSentinel/internal/model"
)

// AppendNarrative adds an immutable event to a signal's story.
func (s *Store) AppendNarrative(ctx context.Context, ev *model.NarrativeEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	snap, err := encodeSnapshot(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO narrative_events
		(id, signal_id, tenant_id, event_type, timestamp, price, snapshot, message)
		VALUES (?,?,?,?,?,?,?,?)`,
		ev.ID, ev.SignalID, ev.TenantID, string(ev.Type), ev.At.Unix(), ev.Price, snap, ev.Message)
	return err
}

// Narrative returns a signal's events in the order they happened.
func (s *Store) Narrative(ctx context.Context, signalID string) ([]model.NarrativeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, signal_id, tenant_id, event_type, timestamp, price, snapshot, message
		FROM narrative_events WHERE signal_id = ? ORDER BY timestamp, rowid`, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NarrativeEvent
	for rows.Next() {
		var (
			ev   model.NarrativeEvent
			typ  string
			ts   int64
			snap string
		)
		if err := rows.Scan(&ev.ID, &ev.SignalID, &ev.TenantID, &typ, &ts, &ev.Price, &snap, &ev.Message); err != nil {
			return nil, err
		}
		ev.Type = model.NarrativeEventType(typ)
		ev.At = fromUnix(ts)
		ev.Snapshot = &model.Snapshot{}
		if err := json.Unmarshal([]byte(snap), ev.Snapshot); err != nil {
			return nil, fmt.Errorf("decode narrative snapshot: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
