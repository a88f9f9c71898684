package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/blogi-collector/internal/progress"
	"github.com/JakeFAU/blogi-collector/internal/store"
)

func TestStoreSinkPersistsRun(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{}
	sink := NewStoreSink(ledger, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now().UTC()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, Step: "image", TS: now},
		{RunID: runID, Stage: progress.StageItemDone, Step: "image", KeywordID: 1, TS: now},
		{RunID: runID, Stage: progress.StageItemFailed, Step: "image", KeywordID: 2, TS: now, Note: "boom"},
		{RunID: runID, Stage: progress.StageItemDone, Step: "image", KeywordID: 3, TS: now},
		{RunID: runID, Stage: progress.StageRunAborted, Step: "image", Reason: "quota", TS: now.Add(time.Second)},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []uuid.UUID{runUUID}, ledger.starts)
	require.Len(t, ledger.records, 5)
	require.Nil(t, ledger.records[0].KeywordID)
	require.Equal(t, int64(2), *ledger.records[2].KeywordID)
	require.Equal(t, store.ItemCounts{Done: 2, Failed: 1}, ledger.counts[runUUID])
	require.Equal(t, []store.RunStatus{store.RunAborted}, ledger.finishes)
	require.Equal(t, "quota", ledger.reasons[0])
}

func TestStoreSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(&fakeLedger{fail: true}, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Stage: progress.StageRunStart, Step: "article", TS: time.Now()},
	})
	require.Error(t, err)
}

func TestStoreSinkNilLedger(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewStoreSink(nil, nil).Consume(context.Background(), []progress.Event{{}}))
}

type fakeLedger struct {
	fail     bool
	starts   []uuid.UUID
	records  []store.EventRecord
	counts   map[uuid.UUID]store.ItemCounts
	finishes []store.RunStatus
	reasons  []string
}

func (f *fakeLedger) StartRun(_ context.Context, runID uuid.UUID, _ string, _ time.Time) error {
	if f.fail {
		return errors.New("start")
	}
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeLedger) FinishRun(_ context.Context, _ uuid.UUID, _ time.Time, status store.RunStatus, reason *string) error {
	f.finishes = append(f.finishes, status)
	if reason != nil {
		f.reasons = append(f.reasons, *reason)
	}
	return nil
}

func (f *fakeLedger) AddCounts(_ context.Context, runID uuid.UUID, counts store.ItemCounts) error {
	if f.counts == nil {
		f.counts = make(map[uuid.UUID]store.ItemCounts)
	}
	c := f.counts[runID]
	c.Done += counts.Done
	c.Skip += counts.Skip
	c.Failed += counts.Failed
	f.counts[runID] = c
	return nil
}

func (f *fakeLedger) AppendEvents(_ context.Context, records []store.EventRecord) error {
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeLedger) RecentRuns(context.Context, int) ([]store.Run, error) {
	return nil, nil
}
