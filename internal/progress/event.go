package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageEntryDone    Stage = "ENTRY_DONE"
	StagePrefetchDone Stage = "PREFETCH_DONE"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
)

// Outcome labels attached to entry completion events.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Event captures a single milestone of a refresh run.
type Event struct {
	// RunID identifies one refresh run in canonical UUID form.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which run milestone occurred.
	Stage Stage
	// Key scopes entry events to one cache entry.
	Key string
	// Title is the publication title for entry events.
	Title string
	// Outcome labels entry completion: updated, unchanged, failed or skipped.
	Outcome string
	// Cites carries the citation count after an entry completed.
	Cites int
	// Warmed counts cache entries resolved by one author listing.
	Warmed int
	// Queries counts Scholar queries consumed when the run finished.
	Queries int
	// Dur captures execution latency for entries and whole runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StagePrefetchDone, StageRunDone, StageRunError:
	case StageEntryDone:
		if e.Key == "" {
			return errors.New("entry done requires key")
		}
		if e.Outcome == "" {
			return errors.New("entry done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
