package sinks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholar-cites/internal/progress"
)

// TestRunStoreTracksLifecycle folds a full run's events into a single record.
func TestRunStoreTracksLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	ctx := context.Background()
	now := time.Now()

	_, ok := store.Latest()
	require.False(t, ok)

	require.NoError(t, store.Consume(ctx, progress.Event{RunID: "run-1", TS: now, Stage: progress.StageRunStart}))

	rec, ok := store.Latest()
	require.True(t, ok)
	require.Equal(t, RunRunning, rec.Status)
	require.Equal(t, now, rec.StartedAt)

	require.NoError(t, store.Consume(ctx, progress.Event{
		RunID:  "run-1",
		TS:     now.Add(1 * time.Second),
		Stage:  progress.StagePrefetchDone,
		Warmed: 2,
	}))
	for _, outcome := range []string{
		progress.OutcomeUpdated,
		progress.OutcomeUpdated,
		progress.OutcomeUnchanged,
		progress.OutcomeFailed,
		progress.OutcomeSkipped,
	} {
		require.NoError(t, store.Consume(ctx, progress.Event{
			RunID:   "run-1",
			TS:      now.Add(2 * time.Second),
			Stage:   progress.StageEntryDone,
			Key:     "b6d767d2f8ed5d21",
			Outcome: outcome,
		}))
	}
	require.NoError(t, store.Consume(ctx, progress.Event{
		RunID:   "run-1",
		TS:      now.Add(30 * time.Second),
		Stage:   progress.StageRunDone,
		Queries: 6,
		Dur:     30 * time.Second,
	}))

	rec, ok = store.Latest()
	require.True(t, ok)
	require.Equal(t, RunSuccess, rec.Status)
	require.Equal(t, now.Add(30*time.Second), rec.FinishedAt)
	require.Equal(t, 2, rec.Updated)
	require.Equal(t, 1, rec.Unchanged)
	require.Equal(t, 1, rec.Failed)
	require.Equal(t, 1, rec.Skipped)
	require.Equal(t, 2, rec.Warmed)
	require.Equal(t, 6, rec.Queries)
}

// TestRunStoreRecordsFailure keeps the error note from RUN_ERROR around for
// the API to report.
func TestRunStoreRecordsFailure(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Consume(ctx, progress.Event{RunID: "run-1", TS: now, Stage: progress.StageRunStart}))
	require.NoError(t, store.Consume(ctx, progress.Event{
		RunID:   "run-1",
		TS:      now.Add(5 * time.Second),
		Stage:   progress.StageRunError,
		Queries: 2,
		Note:    "all egress paths exhausted",
	}))

	rec, ok := store.Latest()
	require.True(t, ok)
	require.Equal(t, RunError, rec.Status)
	require.Equal(t, 2, rec.Queries)
	require.Equal(t, "all egress paths exhausted", rec.Note)
}

// TestRunStoreEvictsOldest bounds the retained history at the configured limit.
func TestRunStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	store := NewRunStore(2)
	ctx := context.Background()
	now := time.Now()

	for i := 1; i <= 3; i++ {
		runID := fmt.Sprintf("run-%d", i)
		require.NoError(t, store.Consume(ctx, progress.Event{RunID: runID, TS: now, Stage: progress.StageRunStart}))
		require.NoError(t, store.Consume(ctx, progress.Event{RunID: runID, TS: now.Add(time.Second), Stage: progress.StageRunDone}))
	}

	recent := store.Recent(0)
	require.Len(t, recent, 2)
	require.Equal(t, "run-3", recent[0].RunID)
	require.Equal(t, "run-2", recent[1].RunID)

	rec, ok := store.Latest()
	require.True(t, ok)
	require.Equal(t, "run-3", rec.RunID)

	require.Len(t, store.Recent(1), 1)
}

// TestRunStoreCreatesRecordOnFirstSight upserts a record even when the start
// event was dropped.
func TestRunStoreCreatesRecordOnFirstSight(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	require.NoError(t, store.Consume(context.Background(), progress.Event{
		RunID:   "run-1",
		TS:      time.Now(),
		Stage:   progress.StageEntryDone,
		Key:     "b6d767d2f8ed5d21",
		Outcome: progress.OutcomeUpdated,
	}))

	rec, ok := store.Latest()
	require.True(t, ok)
	require.Equal(t, "run-1", rec.RunID)
	require.Equal(t, 1, rec.Updated)
	require.True(t, rec.StartedAt.IsZero())
}
