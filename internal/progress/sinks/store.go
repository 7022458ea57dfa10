package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/scholar-cites/internal/progress"
)

// RunStatus describes the lifecycle state of a refresh run.
type RunStatus string

// Run lifecycle states reported by the API.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunRecord is the aggregated view of a single refresh run, built up from the
// progress events the run emits.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Status     RunStatus `json:"status"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Warmed     int       `json:"warmed"`
	Queries    int       `json:"queries"`
	Note       string    `json:"note,omitempty"`
}

// RunStore keeps a bounded in-memory history of refresh runs so the HTTP API
// can report on the current and recent runs without a database. It is safe for
// concurrent use; the hub writes while API handlers read.
type RunStore struct {
	mu    sync.RWMutex
	limit int
	runs  []*RunRecord
}

const defaultRunHistory = 16

// NewRunStore constructs a store that retains at most limit runs, evicting the
// oldest once full.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = defaultRunHistory
	}
	return &RunStore{limit: limit}
}

// Consume folds the event into the per-run record, creating the record on
// first sight of a run ID.
func (s *RunStore) Consume(_ context.Context, evt progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.recordFor(evt.RunID)
	switch evt.Stage {
	case progress.StageRunStart:
		rec.StartedAt = evt.TS
		rec.Status = RunRunning
	case progress.StageEntryDone:
		switch evt.Outcome {
		case progress.OutcomeUpdated:
			rec.Updated++
		case progress.OutcomeUnchanged:
			rec.Unchanged++
		case progress.OutcomeFailed:
			rec.Failed++
		case progress.OutcomeSkipped:
			rec.Skipped++
		}
	case progress.StagePrefetchDone:
		rec.Warmed += evt.Warmed
	case progress.StageRunDone:
		rec.FinishedAt = evt.TS
		rec.Status = RunSuccess
		rec.Queries = evt.Queries
	case progress.StageRunError:
		rec.FinishedAt = evt.TS
		rec.Status = RunError
		rec.Queries = evt.Queries
		rec.Note = evt.Note
	}
	return nil
}

// Latest returns the most recent run, which may still be in flight.
func (s *RunStore) Latest() (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return RunRecord{}, false
	}
	return *s.runs[len(s.runs)-1], true
}

// Recent returns up to n runs ordered most recent first. n <= 0 returns the
// full retained history.
func (s *RunStore) Recent(n int) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.runs) {
		n = len(s.runs)
	}
	out := make([]RunRecord, 0, n)
	for i := len(s.runs) - 1; i >= len(s.runs)-n; i-- {
		out = append(out, *s.runs[i])
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *RunStore) Close(context.Context) error {
	return nil
}

// recordFor scans from the newest run backwards because events almost always
// target the run at the tail. Callers must hold s.mu.
func (s *RunStore) recordFor(runID string) *RunRecord {
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].RunID == runID {
			return s.runs[i]
		}
	}
	rec := &RunRecord{RunID: runID}
	if len(s.runs) >= s.limit {
		s.runs = append(s.runs[:0], s.runs[1:]...)
	}
	s.runs = append(s.runs, rec)
	return rec
}
