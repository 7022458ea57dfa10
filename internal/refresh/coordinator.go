// Package refresh coordinates one end-to-end citation refresh pass: load
// the cache, select stale entries, dispatch the fetch loop, and persist the
// result. Exactly one pass owns the cache file at a time.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/bibliography"
	"github.com/JakeFAU/scholar-cites/internal/cache"
	"github.com/JakeFAU/scholar-cites/internal/clock/system"
	"github.com/JakeFAU/scholar-cites/internal/dispatcher"
	"github.com/JakeFAU/scholar-cites/internal/metrics"
	"github.com/JakeFAU/scholar-cites/internal/policy/staleness"
	"github.com/JakeFAU/scholar-cites/internal/progress"
)

// ErrRunInProgress is returned when Refresh is called while another pass
// still owns the cache.
var ErrRunInProgress = errors.New("a refresh run is already in progress")

// State tracks the coordinator through one pass. A fresh coordinator is
// Idle; Done and Aborted are rest states like Idle, so the next Refresh
// starts over from either.
type State string

// Coordinator lifecycle states.
const (
	StateIdle       State = "idle"
	StateLoaded     State = "loaded"
	StateSelecting  State = "selecting"
	StateFetching   State = "fetching"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Budget fixes the run-scoped limits of one pass. It is built once from the
// configuration and never changes mid-run; the per-query caps live in the
// scheduler and the egress rotator.
type Budget struct {
	// ScholarActive mirrors the master switch. An inactive run still
	// persists the cache exactly as loaded.
	ScholarActive bool
	// FetchTimeout is the minimum age before an entry is refreshed.
	FetchTimeout time.Duration
}

// CacheStore loads and saves the citation cache. *cache.Store satisfies it.
type CacheStore interface {
	Load(ctx context.Context) (*cache.Cache, error)
	Save(ctx context.Context, c *cache.Cache) error
}

// Scheduler runs the fetch pass over the selected candidates.
// *dispatcher.Dispatcher satisfies it.
type Scheduler interface {
	Run(ctx context.Context, runID string, candidates []staleness.Candidate, cc *cache.Cache) (*dispatcher.Result, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Summary reports one finished refresh pass.
type Summary struct {
	RunID      string
	Started    time.Time
	Duration   time.Duration
	Candidates int
	// Outcomes maps every selected key to how it fared.
	Outcomes  map[string]dispatcher.EntryResult
	Updated   int
	Unchanged int
	Failed    int
	Skipped   int
	// Queries counts source queries consumed, the warm-up included.
	Queries int
	Warmed  int
	// CacheEntries is the cache size after the final save.
	CacheEntries int
	// OldestUpdate is the oldest successful fetch in the cache, zero when
	// nothing has resolved yet. Callers use it for "updated since" labels.
	OldestUpdate time.Time
	// Disabled marks a run that skipped fetching because the master
	// switch was off.
	Disabled bool
	// ShortCircuited marks a run that stopped early because the source
	// refused every egress path.
	ShortCircuited bool
}

// Successes counts entries refreshed or confirmed this pass.
func (s *Summary) Successes() int {
	return s.Updated + s.Unchanged
}

// Coordinator owns the citation cache for the duration of one pass.
type Coordinator struct {
	mu    sync.Mutex
	state State

	budget  Budget
	store   CacheStore
	source  bibliography.Source
	sched   Scheduler
	emitter progress.Emitter
	ids     IDGenerator
	clock   Clock
	logger  *zap.Logger
}

// New constructs a Coordinator. emitter may be nil when no progress stream
// is attached.
func New(
	budget Budget,
	store CacheStore,
	source bibliography.Source,
	sched Scheduler,
	emitter progress.Emitter,
	ids IDGenerator,
	clk Clock,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = system.New()
	}
	return &Coordinator{
		state:   StateIdle,
		budget:  budget,
		store:   store,
		source:  source,
		sched:   sched,
		emitter: emitter,
		ids:     ids,
		clock:   clk,
		logger:  logger,
	}
}

// State reports the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refresh executes one full pass and returns its summary. Partial fetch
// results are always persisted; the returned error reports what cut the
// pass short. Concurrent calls beyond the first fail with ErrRunInProgress.
func (c *Coordinator) Refresh(ctx context.Context) (*Summary, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}

	runID, err := c.ids.NewID()
	if err != nil {
		c.setState(StateAborted)
		return nil, fmt.Errorf("allocate run id: %w", err)
	}
	started := c.clock.Now()
	c.logger.Info("Refresh run starting", zap.String("run_id", runID))
	c.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})

	cc := c.loadCache(ctx)

	var candidates []staleness.Candidate
	if c.budget.ScholarActive {
		c.setState(StateSelecting)
		records, err := c.source.Records(ctx)
		if err != nil {
			return c.abort(runID, nil, fmt.Errorf("load bibliography: %w", err))
		}
		candidates = staleness.Select(cc, records, c.budget.FetchTimeout, c.clock.Now())
		c.logger.Info("Stale entries selected",
			zap.Int("records", len(records)),
			zap.Int("candidates", len(candidates)),
		)
	} else {
		c.logger.Info("Citation fetching is inactive, persisting cache as loaded")
	}

	c.setState(StateFetching)
	res, runErr := c.sched.Run(ctx, runID, candidates, cc)

	c.setState(StatePersisting)
	// The final save must run even when the pass was canceled, so the
	// attempt stamps from failed entries reach disk.
	saveCtx := context.WithoutCancel(ctx)
	if err := c.store.Save(saveCtx, cc); err != nil {
		if runErr == nil {
			runErr = fmt.Errorf("persist cache: %w", err)
		} else {
			c.logger.Error("Final cache save failed after run error", zap.Error(err))
		}
	}
	metrics.SetCacheEntries(cc.Len())

	summary := c.buildSummary(runID, started, len(candidates), res, cc)
	if runErr != nil {
		return c.abort(runID, summary, runErr)
	}

	c.setState(StateDone)
	c.emit(progress.Event{
		RunID:   runID,
		Stage:   progress.StageRunDone,
		Queries: summary.Queries,
		Dur:     summary.Duration,
	})
	c.logger.Info("Refresh run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("queries", summary.Queries),
		zap.Duration("duration", summary.Duration),
		zap.Bool("short_circuited", summary.ShortCircuited),
	)
	return summary, nil
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateLoaded, StateSelecting, StateFetching, StatePersisting:
		return ErrRunInProgress
	}
	c.state = StateLoaded
	return nil
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("Coordinator state changed", zap.String("state", string(s)))
}

// loadCache recovers from an unreadable or corrupt cache file by starting
// empty. Refusing to run would leave citations stale forever; the next
// successful save rewrites the file.
func (c *Coordinator) loadCache(ctx context.Context) *cache.Cache {
	cc, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("Citation cache unreadable, starting from empty", zap.Error(err))
		return cache.New()
	}
	return cc
}

func (c *Coordinator) abort(runID string, summary *Summary, err error) (*Summary, error) {
	c.setState(StateAborted)
	evt := progress.Event{RunID: runID, Stage: progress.StageRunError, Note: err.Error()}
	if summary != nil {
		evt.Queries = summary.Queries
		evt.Dur = summary.Duration
	}
	c.emit(evt)
	c.logger.Error("Refresh run aborted", zap.String("run_id", runID), zap.Error(err))
	return summary, err
}

func (c *Coordinator) buildSummary(
	runID string,
	started time.Time,
	candidates int,
	res *dispatcher.Result,
	cc *cache.Cache,
) *Summary {
	if res == nil {
		res = &dispatcher.Result{Entries: map[string]dispatcher.EntryResult{}}
	}
	updated, unchanged, failed, skipped := res.Tally()
	oldest, _ := cc.OldestUpdate()
	return &Summary{
		RunID:          runID,
		Started:        started,
		Duration:       c.clock.Now().Sub(started),
		Candidates:     candidates,
		Outcomes:       res.Entries,
		Updated:        updated,
		Unchanged:      unchanged,
		Failed:         failed,
		Skipped:        skipped,
		Queries:        res.Queries,
		Warmed:         res.Warmed,
		CacheEntries:   cc.Len(),
		OldestUpdate:   oldest,
		Disabled:       !c.budget.ScholarActive,
		ShortCircuited: res.ShortCircuited,
	}
}

func (c *Coordinator) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}
