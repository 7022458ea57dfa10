// Package dispatcher runs one refresh pass over the selected candidates,
// spending a bounded query budget against the citation source. The loop is
// strictly sequential; parallel queries are what get source access revoked.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/bibliography"
	"github.com/JakeFAU/scholar-cites/internal/cache"
	"github.com/JakeFAU/scholar-cites/internal/clock/system"
	"github.com/JakeFAU/scholar-cites/internal/egress"
	"github.com/JakeFAU/scholar-cites/internal/policy/staleness"
	"github.com/JakeFAU/scholar-cites/internal/progress"
	"github.com/JakeFAU/scholar-cites/internal/scholar"
	"github.com/JakeFAU/scholar-cites/internal/worker"
)

// authorListLimit is the page size requested for the warm-up listing.
const authorListLimit = 19

// Clock supplies the current time. Attempted and Updated stamps go through
// it so tests can pin timestamps.
type Clock interface {
	Now() time.Time
}

// Fetcher executes citation lookups. *worker.Worker satisfies it.
type Fetcher interface {
	Lookup(ctx context.Context, q scholar.Query) (*scholar.Result, error)
	AuthorListing(ctx context.Context, author string, limit int) ([]scholar.Result, error)
}

// pathResetter is satisfied by fetchers that carry egress path health
// across runs, like *worker.Worker in serve mode.
type pathResetter interface {
	ResetPaths()
}

// Saver persists the cache after each mutation. *cache.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, c *cache.Cache) error
}

// Config bounds one refresh pass.
type Config struct {
	// Active gates all fetching. When false, Run is a pure no-op.
	Active bool
	// MaxEntriesPerBatch caps the queries spent in one run, the warm-up
	// listing included.
	MaxEntriesPerBatch int
	// PauseMin and PauseMax bound the random pause between queries.
	PauseMin time.Duration
	PauseMax time.Duration
	// AuthorPrefetch enables one author-scoped listing that can resolve
	// several entries before any per-entry query is spent.
	AuthorPrefetch bool
}

// Outcome classifies how one selected key fared during a run.
type Outcome string

// Entry outcomes, aligned with the progress event labels.
const (
	OutcomeUpdated   Outcome = progress.OutcomeUpdated
	OutcomeUnchanged Outcome = progress.OutcomeUnchanged
	OutcomeFailed    Outcome = progress.OutcomeFailed
	OutcomeSkipped   Outcome = progress.OutcomeSkipped
)

// EntryResult records how one key fared.
type EntryResult struct {
	Outcome Outcome
	// Cites is the stored count after the attempt, meaningful for the
	// updated and unchanged outcomes.
	Cites int
	// Note carries the unchanged reason, the failure kind, or the skip
	// reason.
	Note string
}

// Result aggregates one scheduler run.
type Result struct {
	// Entries maps every selected key to its outcome. Keys the run never
	// reached are present with OutcomeSkipped.
	Entries map[string]EntryResult
	// Queries counts source queries consumed, warm-up included.
	Queries int
	// Warmed counts entries resolved from the warm-up listing.
	Warmed int
	// ShortCircuited is set when the source blocked every egress path and
	// the run stopped issuing queries early.
	ShortCircuited bool
}

// Tally returns the outcome counts.
func (r *Result) Tally() (updated, unchanged, failed, skipped int) {
	for _, er := range r.Entries {
		switch er.Outcome {
		case OutcomeUpdated:
			updated++
		case OutcomeUnchanged:
			unchanged++
		case OutcomeFailed:
			failed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return updated, unchanged, failed, skipped
}

// Successes counts entries whose cached data was refreshed or confirmed.
func (r *Result) Successes() int {
	updated, unchanged, _, _ := r.Tally()
	return updated + unchanged
}

// Dispatcher walks the selected candidates one at a time, pacing queries
// and folding fetched counts into the cache as it goes.
type Dispatcher struct {
	fetcher Fetcher
	saver   Saver
	emitter progress.Emitter
	clock   Clock
	pacer   *pacer
	logger  *zap.Logger
	cfg     Config
}

// New constructs a Dispatcher. emitter may be nil when no progress stream
// is attached.
func New(
	cfg Config,
	fetcher Fetcher,
	saver Saver,
	emitter progress.Emitter,
	clk Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = system.New()
	}
	return &Dispatcher{
		fetcher: fetcher,
		saver:   saver,
		emitter: emitter,
		clock:   clk,
		pacer:   newPacer(cfg.PauseMin, cfg.PauseMax),
		logger:  logger,
		cfg:     cfg,
	}
}

// Run refreshes the candidates against the citation source. The cache is
// mutated in place and saved after every change; the caller still owns the
// final save. The returned Result covers every selected key even when the
// run stops early. A save failure aborts the run and is returned.
func (d *Dispatcher) Run(
	ctx context.Context,
	runID string,
	candidates []staleness.Candidate,
	cc *cache.Cache,
) (*Result, error) {
	res := &Result{Entries: make(map[string]EntryResult)}
	if !d.cfg.Active {
		d.logger.Info("Citation fetching is inactive, skipping run")
		return res, nil
	}
	if rp, ok := d.fetcher.(pathResetter); ok {
		rp.ResetPaths()
	}

	batch := selectBatch(candidates, d.cfg.MaxEntriesPerBatch)
	r := &run{d: d, id: runID, cache: cc, result: res}

	remaining := batch
	if d.cfg.AuthorPrefetch && len(batch) >= 2 && ctx.Err() == nil {
		var err error
		remaining, err = r.prefetch(ctx, batch)
		if err != nil {
			return res, err
		}
	}

	for _, cand := range remaining {
		switch {
		case res.ShortCircuited:
			r.skip(cand, "source blocked, deferred to next run")
		case ctx.Err() != nil:
			r.skip(cand, "run canceled")
		case res.Queries >= d.cfg.MaxEntriesPerBatch:
			r.skip(cand, "query budget exhausted")
		default:
			if err := r.fetchOne(ctx, cand); err != nil {
				return res, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// run carries the mutable state of one Run invocation.
type run struct {
	d      *Dispatcher
	id     string
	cache  *cache.Cache
	result *Result
}

// prefetch issues one author-scoped listing for the most frequent first
// author and resolves exact title matches without their own query. It
// returns the candidates still needing individual lookups.
func (r *run) prefetch(ctx context.Context, batch []staleness.Candidate) ([]staleness.Candidate, error) {
	author := mostCommonAuthor(batch)
	if author == "" {
		return batch, nil
	}

	start := time.Now()
	listing, err := r.d.fetcher.AuthorListing(ctx, author, authorListLimit)
	if errors.Is(err, worker.ErrNoAuthorListing) {
		r.d.logger.Debug("Author warm-up unavailable", zap.Error(err))
		return batch, nil
	}
	r.result.Queries++
	if err != nil {
		r.d.logger.Warn("Author warm-up listing failed",
			zap.String("author", author),
			zap.Error(err),
		)
		r.checkSystemicBlock(err)
		return batch, nil
	}

	byTitle := make(map[string]scholar.Result, len(listing))
	for _, item := range listing {
		key := scholar.NormalizeTitle(item.Title)
		if key == "" {
			continue
		}
		if _, ok := byTitle[key]; !ok {
			byTitle[key] = item
		}
	}

	now := r.d.clock.Now()
	remaining := make([]staleness.Candidate, 0, len(batch))
	for _, cand := range batch {
		item, ok := byTitle[scholar.NormalizeTitle(cand.Record.Title)]
		if !ok {
			remaining = append(remaining, cand)
			continue
		}
		er := r.apply(cand.Record, &item, now)
		r.record(cand, er, 0)
		r.result.Warmed++
		if err := r.save(ctx); err != nil {
			return nil, err
		}
	}

	r.d.logger.Info("Author warm-up listing done",
		zap.String("author", author),
		zap.Int("results", len(listing)),
		zap.Int("warmed", r.result.Warmed),
	)
	r.emit(progress.Event{
		Stage:  progress.StagePrefetchDone,
		Warmed: r.result.Warmed,
		Dur:    time.Since(start),
		Note:   author,
	})
	return remaining, nil
}

// fetchOne spends one query on a single candidate. Only a failed cache
// save produces a non-nil error.
func (r *run) fetchOne(ctx context.Context, cand staleness.Candidate) error {
	rec := cand.Record
	if r.result.Queries > 0 {
		if delay := r.d.pacer.Pause(ctx); delay > 0 {
			r.d.logger.Debug("Paused between queries", zap.Duration("pause", delay))
		}
		if ctx.Err() != nil {
			r.skip(cand, "run canceled")
			return nil
		}
	}

	start := time.Now()
	fres, err := r.d.fetcher.Lookup(ctx, scholar.Query{
		Author: rec.FirstAuthor(),
		Title:  rec.Title,
		Raw:    rec.Query,
	})
	r.result.Queries++
	now := r.d.clock.Now()
	if err != nil {
		if entry, ok := r.cache.Get(rec.Key); ok {
			entry.Attempted = now
		}
		r.record(cand, EntryResult{Outcome: OutcomeFailed, Note: failureKind(err)}, time.Since(start))
		r.d.logger.Warn("Citation fetch failed",
			zap.String("key", rec.Key),
			zap.String("title", rec.Title),
			zap.Error(err),
		)
		r.checkSystemicBlock(err)
		return nil
	}

	er := r.apply(rec, fres, now)
	r.record(cand, er, time.Since(start))
	return r.save(ctx)
}

// apply folds one fetched result into the cache. A zero count never
// overwrites a positive cached count; the entry still counts as refreshed.
func (r *run) apply(rec bibliography.Record, fres *scholar.Result, now time.Time) EntryResult {
	entry, ok := r.cache.Get(rec.Key)
	if ok && fres.Citations == 0 && entry.Cites > 0 {
		entry.Updated = now
		entry.Attempted = now
		r.d.logger.Info("Zero count ignored, keeping cached value",
			zap.String("key", rec.Key),
			zap.Int("cites", entry.Cites),
		)
		return EntryResult{Outcome: OutcomeUnchanged, Cites: entry.Cites, Note: "zero count kept"}
	}
	if !ok {
		entry = &cache.Entry{}
		r.cache.Put(rec.Key, entry)
	}
	entry.Query = rec.SearchQuery()
	entry.Cites = fres.Citations
	entry.URL = fres.CitationsURL
	entry.Updated = now
	entry.Attempted = now
	r.d.logger.Info("Citation count updated",
		zap.String("key", rec.Key),
		zap.String("title", rec.Title),
		zap.Int("cites", entry.Cites),
	)
	return EntryResult{Outcome: OutcomeUpdated, Cites: entry.Cites}
}

func (r *run) save(ctx context.Context) error {
	if err := r.d.saver.Save(ctx, r.cache); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

func (r *run) skip(cand staleness.Candidate, reason string) {
	r.record(cand, EntryResult{Outcome: OutcomeSkipped, Note: reason}, 0)
}

func (r *run) record(cand staleness.Candidate, er EntryResult, dur time.Duration) {
	r.result.Entries[cand.Record.Key] = er
	r.emit(progress.Event{
		Stage:   progress.StageEntryDone,
		Key:     cand.Record.Key,
		Title:   cand.Record.Title,
		Outcome: string(er.Outcome),
		Cites:   er.Cites,
		Dur:     dur,
		Note:    er.Note,
	})
}

func (r *run) emit(evt progress.Event) {
	if r.d.emitter == nil {
		return
	}
	evt.RunID = r.id
	evt.TS = r.d.clock.Now()
	r.d.emitter.Emit(evt)
}

// checkSystemicBlock stops the run from issuing further queries once the
// source has refused every egress path.
func (r *run) checkSystemicBlock(err error) {
	if r.result.ShortCircuited || !systemicBlock(err) {
		return
	}
	r.result.ShortCircuited = true
	r.d.logger.Warn("Citation source refused every egress path, holding remaining entries for the next run")
}

// selectBatch truncates the ordered candidates to the query budget,
// dropping duplicate keys so no key is attempted twice in one run.
func selectBatch(candidates []staleness.Candidate, budget int) []staleness.Candidate {
	if budget <= 0 {
		return nil
	}
	capacity := budget
	if len(candidates) < capacity {
		capacity = len(candidates)
	}
	out := make([]staleness.Candidate, 0, capacity)
	seen := make(map[string]struct{}, capacity)
	for _, cand := range candidates {
		if len(out) >= budget {
			break
		}
		if _, dup := seen[cand.Record.Key]; dup {
			continue
		}
		seen[cand.Record.Key] = struct{}{}
		out = append(out, cand)
	}
	return out
}

// mostCommonAuthor returns the most frequent first author among the
// candidates, preferring the earliest seen on ties. Authors covering a
// single candidate return empty: a listing costs one query, so it has to
// stand in for at least two lookups to be worth spending.
func mostCommonAuthor(batch []staleness.Candidate) string {
	counts := make(map[string]int, len(batch))
	order := make([]string, 0, len(batch))
	for _, cand := range batch {
		author := cand.Record.FirstAuthor()
		if author == "" {
			continue
		}
		if counts[author] == 0 {
			order = append(order, author)
		}
		counts[author]++
	}
	best := ""
	for _, author := range order {
		if best == "" || counts[author] > counts[best] {
			best = author
		}
	}
	if counts[best] < 2 {
		return ""
	}
	return best
}

// systemicBlock reports whether the failure means the source refused every
// available egress path, so further queries this run would only burn quota.
func systemicBlock(err error) bool {
	var exhausted *egress.ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Attempts == 0 {
		return true
	}
	var blocked *scholar.BlockedError
	return errors.As(err, &blocked)
}

// failureKind labels an error for outcome reporting. Exhaustion is checked
// first because it wraps the final per-path failure.
func failureKind(err error) string {
	var exhausted *egress.ExhaustedError
	if errors.As(err, &exhausted) {
		return "exhausted"
	}
	var blocked *scholar.BlockedError
	if errors.As(err, &blocked) {
		return "blocked"
	}
	var parse *scholar.ParseError
	if errors.As(err, &parse) {
		return "parse_error"
	}
	var network *scholar.NetworkError
	if errors.As(err, &network) {
		return "network_error"
	}
	return "error"
}
