package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholar-cites/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	runID := "run-1"

	require.NoError(t, sink.Consume(ctx, progress.Event{RunID: runID, TS: now, Stage: progress.StageRunStart}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(ctx, progress.Event{
		RunID:  runID,
		TS:     now.Add(2 * time.Second),
		Stage:  progress.StagePrefetchDone,
		Warmed: 3,
	}))
	for _, outcome := range []string{
		progress.OutcomeUpdated,
		progress.OutcomeUpdated,
		progress.OutcomeUnchanged,
		progress.OutcomeFailed,
	} {
		require.NoError(t, sink.Consume(ctx, progress.Event{
			RunID:   runID,
			TS:      now.Add(5 * time.Second),
			Stage:   progress.StageEntryDone,
			Key:     "b6d767d2f8ed5d21",
			Outcome: outcome,
		}))
	}
	require.NoError(t, sink.Consume(ctx, progress.Event{
		RunID:   runID,
		TS:      now.Add(15 * time.Second),
		Stage:   progress.StageRunDone,
		Queries: 5,
		Dur:     15 * time.Second,
	}))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.entryOutcomes.WithLabelValues(progress.OutcomeUpdated)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.entryOutcomes.WithLabelValues(progress.OutcomeUnchanged)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.entryOutcomes.WithLabelValues(progress.OutcomeFailed)))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.prefetchWarmed))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "scholar_run_duration_seconds"))
}

// TestPrometheusSinkTracksRunningGauge guards the gauge against duplicate
// start and completion events for the same run.
func TestPrometheusSinkTracksRunningGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	start := progress.Event{RunID: "run-1", TS: time.Now(), Stage: progress.StageRunStart}
	require.NoError(t, sink.Consume(ctx, start))
	require.NoError(t, sink.Consume(ctx, start))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	done := progress.Event{RunID: "run-1", TS: time.Now(), Stage: progress.StageRunError, Note: "egress exhausted"}
	require.NoError(t, sink.Consume(ctx, done))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(ctx, done))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}
