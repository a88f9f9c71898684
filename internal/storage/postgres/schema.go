package postgres

import (
	"context"
	"fmt"
)

// schema creates the ledger tables when they are missing.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS collection_runs (
		id            UUID PRIMARY KEY,
		step          TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ,
		status        TEXT NOT NULL,
		reason        TEXT,
		items_done    BIGINT NOT NULL DEFAULT 0,
		items_skipped BIGINT NOT NULL DEFAULT 0,
		items_failed  BIGINT NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS collection_events (
		id          BIGSERIAL PRIMARY KEY,
		run_id      UUID NOT NULL,
		step        TEXT NOT NULL,
		stage       TEXT NOT NULL,
		keyword_id  BIGINT,
		subject     TEXT NOT NULL DEFAULT '',
		reason      TEXT NOT NULL DEFAULT '',
		url         TEXT NOT NULL DEFAULT '',
		note        TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		occurred_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS collection_events_run_idx ON collection_events (run_id, occurred_at);`,
}

// EnsureSchema creates the ledger tables and indexes if they do not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	return nil
}
