// Package egress selects the network identity used for outbound
// Google Scholar requests. A Rotator either pins every request to the
// direct path or rotates across a pool of proxy paths, remembering
// which paths have already failed during the current run.
package egress

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DirectName labels the path used when proxying is disabled.
const DirectName = "direct"

// Path is one egress identity for outbound requests.
type Path struct {
	// Name uniquely identifies the path inside a pool. It is "direct"
	// for the unproxied path and host:port for proxy paths.
	Name string
	// ProxyURL is nil for the direct path.
	ProxyURL *url.URL
}

// Direct reports whether the path bypasses the proxy pool.
func (p Path) Direct() bool {
	return p.ProxyURL == nil
}

// ExhaustedError reports that every candidate egress path failed for a
// single unit of work, or that no healthy path was left to try.
type ExhaustedError struct {
	Attempts int
	Cause    error
}

func (e *ExhaustedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("egress: no healthy path left after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("egress: exhausted %d paths: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// Config controls how the rotator builds its path pool.
type Config struct {
	UseProxy  bool
	ProxyURLs []string
	// Rotations caps how many distinct paths one unit of work may try.
	Rotations int
}

// Rotator hands out egress paths and tracks per-run path health.
// Unhealthy paths stay excluded until Reset starts the next run.
type Rotator struct {
	mu        sync.Mutex
	unhealthy map[string]struct{}

	useProxy  bool
	paths     []Path
	rotations int
	logger    *zap.Logger
}

// NewRotator parses the configured proxy pool and returns a rotator.
// With UseProxy disabled the rotator only ever yields the direct path.
func NewRotator(cfg Config, logger *zap.Logger) (*Rotator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Rotator{
		useProxy:  cfg.UseProxy,
		rotations: cfg.Rotations,
		unhealthy: make(map[string]struct{}),
		logger:    logger,
	}
	if r.rotations <= 0 {
		r.rotations = 1
	}
	if !cfg.UseProxy {
		return r, nil
	}

	seen := make(map[string]struct{})
	for _, raw := range cfg.ProxyURLs {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		path, err := parseProxyPath(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[path.Name]; dup {
			logger.Warn("Skipping duplicate proxy path", zap.String("path", path.Name))
			continue
		}
		seen[path.Name] = struct{}{}
		r.paths = append(r.paths, path)
	}
	if len(r.paths) == 0 {
		return nil, errors.New("egress: proxy mode enabled but no usable proxy urls configured")
	}
	return r, nil
}

func parseProxyPath(raw string) (Path, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Path{}, fmt.Errorf("egress: invalid proxy url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return Path{}, fmt.Errorf("egress: unsupported proxy scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return Path{}, fmt.Errorf("egress: proxy url %q has no host", raw)
	}
	return Path{Name: strings.ToLower(u.Host), ProxyURL: u}, nil
}

// PoolSize returns the number of configured proxy paths.
func (r *Rotator) PoolSize() int {
	return len(r.paths)
}

// Healthy returns how many proxy paths have not failed yet this run.
func (r *Rotator) Healthy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths) - len(r.unhealthy)
}

// Reset clears path health at the start of a new run. The pool outlives
// individual runs in serve mode, but a failure only means anything for
// the run that saw it.
func (r *Rotator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unhealthy = make(map[string]struct{})
}

// Do runs attempt over candidate paths until one succeeds.
//
// In direct mode there is exactly one attempt and its error is returned
// unchanged. In proxy mode up to Rotations distinct healthy paths are
// tried in random order; each failing path is marked unhealthy for the
// rest of the run and the final failure is wrapped in an ExhaustedError.
func (r *Rotator) Do(ctx context.Context, attempt func(ctx context.Context, path Path) error) error {
	if !r.useProxy {
		if err := ctx.Err(); err != nil {
			return err
		}
		return attempt(ctx, Path{Name: DirectName})
	}

	candidates := r.healthySnapshot()
	shufflePaths(candidates)
	if len(candidates) > r.rotations {
		candidates = candidates[:r.rotations]
	}
	if len(candidates) == 0 {
		return &ExhaustedError{}
	}

	var lastErr error
	attempts := 0
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		err := attempt(ctx, path)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.markUnhealthy(path)
		lastErr = err
		r.logger.Warn("Egress path failed",
			zap.String("path", path.Name),
			zap.Int("healthy_remaining", r.Healthy()),
			zap.Error(err),
		)
	}
	return &ExhaustedError{Attempts: attempts, Cause: lastErr}
}

func (r *Rotator) healthySnapshot() []Path {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Path, 0, len(r.paths))
	for _, p := range r.paths {
		if _, bad := r.unhealthy[p.Name]; !bad {
			out = append(out, p)
		}
	}
	return out
}

func (r *Rotator) markUnhealthy(p Path) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unhealthy[p.Name] = struct{}{}
}

func shufflePaths(paths []Path) {
	for i := len(paths) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		paths[i], paths[j] = paths[j], paths[i]
	}
}

func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	bound := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
