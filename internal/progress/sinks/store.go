package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/progress"
	"github.com/JakeFAU/blogi-collector/internal/store"
)

// StoreSink persists events to a store.Ledger. Item counts are collapsed per
// run so each batch costs one counter update per run.
type StoreSink struct {
	ledger store.Ledger
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for ledger.
func NewStoreSink(ledger store.Ledger, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{ledger: ledger, logger: logger}
}

// Consume writes run rows, event rows and counter deltas in that order.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.ledger == nil {
		return nil
	}
	records := make([]store.EventRecord, 0, len(batch))
	counts := make(map[uuid.UUID]*store.ItemCounts)
	var order []uuid.UUID

	for _, evt := range batch {
		runID := evt.RunUUID()
		if evt.Stage == progress.StageRunStart {
			if err := s.ledger.StartRun(ctx, runID, evt.Step, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		}
		records = append(records, toRecord(runID, evt))
		if evt.Stage.Item() {
			c := counts[runID]
			if c == nil {
				c = &store.ItemCounts{}
				counts[runID] = c
				order = append(order, runID)
			}
			switch evt.Stage {
			case progress.StageItemDone:
				c.Done++
			case progress.StageItemSkipped:
				c.Skip++
			case progress.StageItemFailed:
				c.Failed++
			}
		}
	}

	if err := s.ledger.AppendEvents(ctx, records); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	for _, runID := range order {
		if err := s.ledger.AddCounts(ctx, runID, *counts[runID]); err != nil {
			return fmt.Errorf("add counts: %w", err)
		}
	}
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		status := store.RunDone
		var reason *string
		if evt.Stage == progress.StageRunAborted {
			status = store.RunAborted
			r := evt.Reason
			reason = &r
		}
		if err := s.ledger.FinishRun(ctx, evt.RunUUID(), evt.TS, status, reason); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
	}
	return nil
}

func toRecord(runID uuid.UUID, evt progress.Event) store.EventRecord {
	rec := store.EventRecord{
		RunID:      runID,
		Step:       evt.Step,
		Stage:      string(evt.Stage),
		Subject:    evt.Subject,
		Reason:     evt.Reason,
		URL:        evt.URL,
		Note:       evt.Note,
		Duration:   evt.Dur,
		OccurredAt: evt.TS,
	}
	if evt.KeywordID > 0 {
		id := evt.KeywordID
		rec.KeywordID = &id
	}
	return rec
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
