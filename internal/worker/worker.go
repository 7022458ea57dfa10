// Package worker executes single citation lookups across egress paths.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/egress"
	"github.com/JakeFAU/scholar-cites/internal/metrics"
	"github.com/JakeFAU/scholar-cites/internal/policy/ratelimit"
	"github.com/JakeFAU/scholar-cites/internal/scholar"
)

// ErrNoAuthorListing reports that the primary backend cannot run
// author-scoped listings. Callers that budget queries can tell this
// apart from a listing that ran and matched nothing.
var ErrNoAuthorListing = errors.New("primary backend does not support author listings")

// Worker resolves one citation query at a time. It owns the escalation
// order: primary backend first, fallback backend on the same egress
// path when the primary was blocked or returned an unusable page.
type Worker struct {
	rotator  *egress.Rotator
	limiter  *ratelimit.Limiter
	primary  scholar.Backend
	fallback scholar.Backend
	logger   *zap.Logger
}

// New constructs a Worker. fallback may be nil when the headless
// backend is disabled.
func New(
	rotator *egress.Rotator,
	limiter *ratelimit.Limiter,
	primary scholar.Backend,
	fallback scholar.Backend,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		rotator:  rotator,
		limiter:  limiter,
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// ResetPaths clears egress path health before a new run.
func (w *Worker) ResetPaths() {
	w.rotator.Reset()
}

// Lookup runs the query until one egress path yields a result. Each
// path performs at most two backend calls, so the total number of
// requests per lookup stays bounded by twice the rotation cap.
func (w *Worker) Lookup(ctx context.Context, q scholar.Query) (*scholar.Result, error) {
	var result *scholar.Result
	err := w.rotator.Do(ctx, func(ctx context.Context, path egress.Path) error {
		res, err := w.fetchOnPath(ctx, q, path)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AuthorListing runs a broad author search to warm several entries from
// one request. It returns ErrNoAuthorListing when the primary backend
// cannot list by author. Listings never escalate to the fallback backend.
func (w *Worker) AuthorListing(ctx context.Context, author string, limit int) ([]scholar.Result, error) {
	lister, ok := w.primary.(scholar.AuthorLister)
	if !ok {
		return nil, ErrNoAuthorListing
	}

	var results []scholar.Result
	err := w.rotator.Do(ctx, func(ctx context.Context, path egress.Path) error {
		if err := w.limiter.Wait(ctx, path.Name); err != nil {
			return err
		}
		start := time.Now()
		res, err := lister.ListByAuthor(ctx, author, limit, path)
		metrics.ObserveFetchAttempt(w.primary.Name(), resultLabel(err), time.Since(start))
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (w *Worker) fetchOnPath(ctx context.Context, q scholar.Query, path egress.Path) (*scholar.Result, error) {
	if err := w.limiter.Wait(ctx, path.Name); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := w.primary.Fetch(ctx, q, path)
	metrics.ObserveFetchAttempt(w.primary.Name(), resultLabel(err), time.Since(start))
	if err == nil {
		return res, nil
	}
	if w.fallback == nil || !shouldEscalate(err) {
		return nil, err
	}

	w.logger.Info("Escalating to fallback backend",
		zap.String("path", path.Name),
		zap.String("primary", w.primary.Name()),
		zap.Error(err),
	)

	if err := w.limiter.Wait(ctx, path.Name); err != nil {
		return nil, err
	}
	start = time.Now()
	res, err = w.fallback.Fetch(ctx, q, path)
	metrics.ObserveFetchAttempt(w.fallback.Name(), resultLabel(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// shouldEscalate decides whether the fallback backend gets a turn.
// Blocks and unusable pages may render differently under a real
// browser. Transport failures will not.
func shouldEscalate(err error) bool {
	var blocked *scholar.BlockedError
	if errors.As(err, &blocked) {
		return true
	}
	var parse *scholar.ParseError
	return errors.As(err, &parse)
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
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
