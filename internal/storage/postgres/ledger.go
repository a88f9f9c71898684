package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/blogi-collector/internal/store"
)

// LedgerConfig controls the connection pool used for the run ledger.
type LedgerConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Ledger implements store.Ledger on Postgres.
type Ledger struct {
	pool pgPool
}

var _ store.Ledger = (*Ledger)(nil)

// NewLedger connects a pool for cfg.DSN.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// NewLedgerWithPool wraps an existing pool (primarily for testing).
func NewLedgerWithPool(pool pgPool) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Ledger{pool: pool}, nil
}

// Close releases the pool.
func (l *Ledger) Close() {
	if l != nil && l.pool != nil {
		l.pool.Close()
	}
}

// StartRun inserts the run row.
func (l *Ledger) StartRun(ctx context.Context, runID uuid.UUID, step string, startedAt time.Time) error {
	const query = `
		INSERT INTO collection_runs (id, step, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := l.pool.Exec(ctx, query, runID, step, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert collection run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status.
func (l *Ledger) FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status store.RunStatus, reason *string) error {
	const query = `
		UPDATE collection_runs
		SET finished_at = $1, status = $2, reason = $3
		WHERE id = $4;
	`
	if _, err := l.pool.Exec(ctx, query, finishedAt, status, reason, runID); err != nil {
		return fmt.Errorf("finish collection run: %w", err)
	}
	return nil
}

// AddCounts applies item deltas.
func (l *Ledger) AddCounts(ctx context.Context, runID uuid.UUID, counts store.ItemCounts) error {
	const query = `
		UPDATE collection_runs
		SET items_done = items_done + $1, items_skipped = items_skipped + $2, items_failed = items_failed + $3
		WHERE id = $4;
	`
	if _, err := l.pool.Exec(ctx, query, counts.Done, counts.Skip, counts.Failed, runID); err != nil {
		return fmt.Errorf("update collection run counts: %w", err)
	}
	return nil
}

// AppendEvents inserts event rows in one transaction.
func (l *Ledger) AppendEvents(ctx context.Context, records []store.EventRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin events tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	const query = `
		INSERT INTO collection_events
			(run_id, step, stage, keyword_id, subject, reason, url, note, duration_ms, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	for _, rec := range records {
		if _, err = tx.Exec(ctx, query,
			rec.RunID,
			rec.Step,
			rec.Stage,
			rec.KeywordID,
			rec.Subject,
			rec.Reason,
			rec.URL,
			rec.Note,
			rec.Duration.Milliseconds(),
			rec.OccurredAt,
		); err != nil {
			return fmt.Errorf("insert collection event: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit events tx: %w", err)
	}
	return nil
}

// RecentRuns lists runs newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, step, started_at, finished_at, status, reason, items_done, items_skipped, items_failed
		FROM collection_runs
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := l.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list collection runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(
			&run.ID,
			&run.Step,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Reason,
			&run.Done,
			&run.Skip,
			&run.Failed,
		); err != nil {
			return nil, fmt.Errorf("scan collection run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection runs: %w", err)
	}
	return runs, nil
}
