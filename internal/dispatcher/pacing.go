package dispatcher

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/JakeFAU/scholar-cites/internal/metrics"
)

// pacer inserts a uniform random pause from [min, max] between consecutive
// queries.
type pacer struct {
	min time.Duration
	max time.Duration
}

func newPacer(min, max time.Duration) *pacer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &pacer{min: min, max: max}
}

// Pause sleeps for a random duration in [min, max], returning early when
// ctx finishes. It reports the chosen delay.
func (p *pacer) Pause(ctx context.Context) time.Duration {
	delay := p.delay()
	if delay <= 0 {
		return 0
	}
	metrics.ObservePause("scheduler", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return delay
}

func (p *pacer) delay() time.Duration {
	span := int64(p.max - p.min)
	if span <= 0 {
		return p.min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return p.min
	}
	return p.min + time.Duration(n.Int64())
}
