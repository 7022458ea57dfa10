// Package ratelimit implements a token bucket limiter keyed by egress path,
// so rotating through proxies never concentrates queries on a single route.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/scholar-cites/internal/metrics"
)

// Limiter manages per-path rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// MinInterval is the minimum spacing between requests on one path.
	// Zero or negative disables limiting.
	MinInterval time.Duration
	// Burst is the number of immediate requests allowed per path.
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: cfg.MinInterval,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the given path, respecting the
// context. Delays over a millisecond are recorded in metrics.
func (l *Limiter) Wait(ctx context.Context, path string) error {
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	limiter, exists := l.limiters[path]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(l.interval), l.burst)
		l.limiters[path] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObservePause(metrics.SanitizePath(path), delay)
	}
	return nil
}
