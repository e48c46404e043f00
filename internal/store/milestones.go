package store

import (
	"context"
	"time"
)

// ClaimMilestone records key for the signal if it is not already present.
// It returns true only for the caller whose insert created the row.
func (s *Store) ClaimMilestone(ctx context.Context, signalID, key string) (bool, error) {
	return changed(s.db.ExecContext(ctx, `INSERT INTO signal_milestones (signal_id, milestone_key, claimed_at)
		VALUES (?, ?, ?) ON CONFLICT (signal_id, milestone_key) DO NOTHING`,
		signalID, key, time.Now().Unix()))
}

// IsMilestoneClaimed reports whether key was already claimed for the signal.
func (s *Store) IsMilestoneClaimed(ctx context.Context, signalID, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signal_milestones WHERE signal_id = ? AND milestone_key = ?`,
		signalID, key).Scan(&n)
	return n > 0, err
}

// Milestones lists the signal's claimed keys in claim order.
func (s *Store) Milestones(ctx context.Context, signalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT milestone_key FROM signal_milestones WHERE signal_id = ? ORDER BY claimed_at, rowid`, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
