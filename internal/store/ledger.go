package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the collection_runs.status column.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunAborted RunStatus = "aborted"
)

// Run is one row of collection_runs.
type Run struct {
	ID         uuid.UUID
	Step       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// Reason is set when the run was aborted.
	Reason *string
	Done   int64
	Skip   int64
	Failed int64
}

// EventRecord is one row of collection_events.
type EventRecord struct {
	RunID      uuid.UUID
	Step       string
	Stage      string
	KeywordID  *int64
	Subject    string
	Reason     string
	URL        string
	Note       string
	Duration   time.Duration
	OccurredAt time.Time
}

// ItemCounts are per-run deltas applied when a batch is flushed.
type ItemCounts struct {
	Done   int64
	Skip   int64
	Failed int64
}

// Ledger persists collection run history.
type Ledger interface {
	// StartRun inserts the run row; repeating it is harmless.
	StartRun(ctx context.Context, runID uuid.UUID, step string, startedAt time.Time) error
	// FinishRun records the terminal status.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, reason *string) error
	// AddCounts applies item deltas to the run row.
	AddCounts(ctx context.Context, runID uuid.UUID, counts ItemCounts) error
	// AppendEvents inserts event rows in one transaction.
	AppendEvents(ctx context.Context, records []EventRecord) error
	// RecentRuns lists runs newest first.
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
}
