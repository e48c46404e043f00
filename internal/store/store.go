// Package store is the SQLite persistence layer for signals, milestone claims,
// narrative events, per-tenant strategy configuration and bot selection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrOpenSignalExists is returned when a tenant already has a draft, pending or open signal.
	ErrOpenSignalExists = errors.New("tenant already has an open signal")
	ErrNotFound         = errors.New("not found")
	ErrTenantRequired   = errors.New("tenant id is required")
)

// Store persists engine state in a SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers inside this process; the
	// conditional updates below keep concurrent processes safe.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id                  TEXT PRIMARY KEY,
			tenant_id           TEXT NOT NULL,
			strategy_id         TEXT NOT NULL,
			symbol              TEXT NOT NULL,
			timeframe           TEXT NOT NULL,
			direction           TEXT NOT NULL,
			status              TEXT NOT NULL,
			delivery_id         TEXT NOT NULL DEFAULT '',
			entry               REAL NOT NULL,
			stop_loss           REAL NOT NULL,
			effective_sl        REAL NOT NULL,
			tp1_price           REAL NOT NULL DEFAULT 0,
			tp1_alloc           INTEGER NOT NULL DEFAULT 0,
			tp1_hit             INTEGER NOT NULL DEFAULT 0,
			tp1_hit_at          INTEGER NOT NULL DEFAULT 0,
			tp2_price           REAL NOT NULL DEFAULT 0,
			tp2_alloc           INTEGER NOT NULL DEFAULT 0,
			tp2_hit             INTEGER NOT NULL DEFAULT 0,
			tp2_hit_at          INTEGER NOT NULL DEFAULT 0,
			tp3_price           REAL NOT NULL DEFAULT 0,
			tp3_alloc           INTEGER NOT NULL DEFAULT 0,
			tp3_hit             INTEGER NOT NULL DEFAULT 0,
			tp3_hit_at          INTEGER NOT NULL DEFAULT 0,
			tp_count            INTEGER NOT NULL,
			breakeven_triggered INTEGER NOT NULL DEFAULT 0,
			breakeven_at        INTEGER NOT NULL DEFAULT 0,
			guidance_count      INTEGER NOT NULL DEFAULT 0,
			last_guidance_at    INTEGER NOT NULL DEFAULT 0,
			progress_zone       INTEGER NOT NULL DEFAULT 0,
			caution_zone        INTEGER NOT NULL DEFAULT 0,
			snapshot            TEXT NOT NULL DEFAULT '[]',
			thesis_status       TEXT NOT NULL DEFAULT 'intact',
			thesis_notes        TEXT NOT NULL DEFAULT '',
			thesis_changed_at   INTEGER NOT NULL DEFAULT 0,
			revalidation_count  INTEGER NOT NULL DEFAULT 0,
			last_revalidated_at INTEGER NOT NULL DEFAULT 0,
			timeout_notified    INTEGER NOT NULL DEFAULT 0,
			rationale           TEXT NOT NULL DEFAULT '',
			created_at          INTEGER NOT NULL,
			posted_at           INTEGER NOT NULL DEFAULT 0,
			closed_at           INTEGER NOT NULL DEFAULT 0,
			result_delta        REAL NOT NULL DEFAULT 0,
			result_pips         REAL NOT NULL DEFAULT 0,
			close_price         REAL NOT NULL DEFAULT 0
		)`,
		// At most one draft/pending/open signal per tenant, enforced by the database.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_one_open
			ON signals(tenant_id) WHERE status IN ('draft','pending','open')`,
		`CREATE INDEX IF NOT EXISTS idx_signals_tenant_closed ON signals(tenant_id, closed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_strategy_created ON signals(tenant_id, strategy_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS signal_milestones (
			signal_id     TEXT NOT NULL REFERENCES signals(id),
			milestone_key TEXT NOT NULL,
			claimed_at    INTEGER NOT NULL,
			PRIMARY KEY (signal_id, milestone_key)
		)`,

		`CREATE TABLE IF NOT EXISTS narrative_events (
			id         TEXT PRIMARY KEY,
			signal_id  TEXT NOT NULL REFERENCES signals(id),
			tenant_id  TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			price      REAL NOT NULL DEFAULT 0,
			snapshot   TEXT NOT NULL DEFAULT '[]',
			message    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_narrative_signal ON narrative_events(signal_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS strategy_config (
			tenant_id   TEXT NOT NULL,
			strategy_id TEXT NOT NULL,
			key         TEXT NOT NULL,
			value       TEXT NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, strategy_id, key)
		)`,

		`CREATE TABLE IF NOT EXISTS bot_selection (
			tenant_id  TEXT PRIMARY KEY,
			active     TEXT NOT NULL DEFAULT '',
			queued     TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.log.Info("closing sqlite store")
	return s.db.Close()
}

func firstLine(stmt string) string {
	if len(stmt) > 60 {
		return stmt[:60]
	}
	return stmt
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func changed(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
