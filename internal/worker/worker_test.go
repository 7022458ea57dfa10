package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/egress"
	"github.com/JakeFAU/scholar-cites/internal/policy/ratelimit"
	"github.com/JakeFAU/scholar-cites/internal/scholar"
)

type fakeBackend struct {
	mu     sync.Mutex
	name   string
	calls  []string
	script func(call int, path egress.Path) (*scholar.Result, error)
}

func (f *fakeBackend) Name() string {
	return f.name
}

func (f *fakeBackend) Fetch(_ context.Context, _ scholar.Query, path egress.Path) (*scholar.Result, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, path.Name)
	f.mu.Unlock()
	return f.script(call, path)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeListerBackend struct {
	fakeBackend
	listResults []scholar.Result
	listErr     error
	listCalls   int
}

func (f *fakeListerBackend) ListByAuthor(_ context.Context, _ string, _ int, _ egress.Path) ([]scholar.Result, error) {
	f.listCalls++
	return f.listResults, f.listErr
}

func alwaysSucceed(res *scholar.Result) func(int, egress.Path) (*scholar.Result, error) {
	return func(int, egress.Path) (*scholar.Result, error) {
		return res, nil
	}
}

func alwaysFail(err error) func(int, egress.Path) (*scholar.Result, error) {
	return func(int, egress.Path) (*scholar.Result, error) {
		return nil, err
	}
}

func directRotator(t *testing.T) *egress.Rotator {
	t.Helper()
	r, err := egress.NewRotator(egress.Config{UseProxy: false, Rotations: 3}, zap.NewNop())
	require.NoError(t, err)
	return r
}

func proxyRotator(t *testing.T, urls []string, rotations int) *egress.Rotator {
	t.Helper()
	r, err := egress.NewRotator(egress.Config{
		UseProxy:  true,
		ProxyURLs: urls,
		Rotations: rotations,
	}, zap.NewNop())
	require.NoError(t, err)
	return r
}

func newTestWorker(rotator *egress.Rotator, primary, fallback scholar.Backend) *Worker {
	return New(rotator, ratelimit.New(ratelimit.Config{}), primary, fallback, zap.NewNop())
}

func TestWorkerLookup_PrimarySuccess(t *testing.T) {
	t.Parallel()

	want := &scholar.Result{Title: "Paper", Citations: 12}
	primary := &fakeBackend{name: "colly", script: alwaysSucceed(want)}
	fallback := &fakeBackend{name: "chromedp", script: alwaysFail(errors.New("unused"))}

	w := newTestWorker(directRotator(t), primary, fallback)
	res, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	require.NoError(t, err)
	assert.Equal(t, want, res)
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 0, fallback.callCount(), "fallback must stay idle on primary success")
}

func TestWorkerLookup_BlockedEscalatesOnSamePath(t *testing.T) {
	t.Parallel()

	want := &scholar.Result{Title: "Paper", Citations: 3}
	primary := &fakeBackend{name: "colly", script: alwaysFail(&scholar.BlockedError{Reason: "captcha"})}
	fallback := &fakeBackend{name: "chromedp", script: alwaysSucceed(want)}

	w := newTestWorker(proxyRotator(t, []string{"http://proxy-a.example.com:3128"}, 1), primary, fallback)
	res, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	require.NoError(t, err)
	assert.Equal(t, want, res)
	require.Equal(t, 1, primary.callCount())
	require.Equal(t, 1, fallback.callCount())
	assert.Equal(t, primary.calls[0], fallback.calls[0], "fallback must reuse the path the primary failed on")
}

func TestWorkerLookup_ParseErrorEscalates(t *testing.T) {
	t.Parallel()

	want := &scholar.Result{Title: "Paper", Citations: 3}
	primary := &fakeBackend{name: "colly", script: alwaysFail(&scholar.ParseError{Reason: "no results markup found"})}
	fallback := &fakeBackend{name: "chromedp", script: alwaysSucceed(want)}

	w := newTestWorker(directRotator(t), primary, fallback)
	res, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	require.NoError(t, err)
	assert.Equal(t, want, res)
	assert.Equal(t, 1, fallback.callCount())
}

func TestWorkerLookup_NetworkErrorDoesNotEscalate(t *testing.T) {
	t.Parallel()

	netErr := &scholar.NetworkError{Err: errors.New("connection refused")}
	primary := &fakeBackend{name: "colly", script: alwaysFail(netErr)}
	fallback := &fakeBackend{name: "chromedp", script: alwaysSucceed(&scholar.Result{})}

	w := newTestWorker(directRotator(t), primary, fallback)
	_, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	var gotNet *scholar.NetworkError
	require.ErrorAs(t, err, &gotNet)
	assert.Equal(t, 0, fallback.callCount(), "network failures must not reach the fallback")
}

func TestWorkerLookup_NoFallbackConfigured(t *testing.T) {
	t.Parallel()

	primary := &fakeBackend{name: "colly", script: alwaysFail(&scholar.BlockedError{Reason: "captcha"})}

	w := newTestWorker(directRotator(t), primary, nil)
	_, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	var blocked *scholar.BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, 1, primary.callCount())
}

func TestWorkerLookup_BoundedAttempts(t *testing.T) {
	t.Parallel()

	primary := &fakeBackend{name: "colly", script: alwaysFail(&scholar.BlockedError{Reason: "captcha"})}
	fallback := &fakeBackend{name: "chromedp", script: alwaysFail(&scholar.BlockedError{Reason: "captcha"})}

	pool := []string{
		"http://proxy-a.example.com:3128",
		"http://proxy-b.example.com:3128",
		"http://proxy-c.example.com:3128",
	}
	w := newTestWorker(proxyRotator(t, pool, 2), primary, fallback)
	_, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	var exhausted *egress.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, primary.callCount(), "rotation cap bounds primary calls")
	assert.Equal(t, 2, fallback.callCount(), "rotation cap bounds fallback calls")
}

func TestWorkerResetPaths(t *testing.T) {
	t.Parallel()

	primary := &fakeBackend{name: "colly", script: alwaysFail(&scholar.BlockedError{Reason: "captcha"})}
	pool := []string{
		"http://proxy-a.example.com:3128",
		"http://proxy-b.example.com:3128",
	}
	rotator := proxyRotator(t, pool, 2)
	w := newTestWorker(rotator, primary, nil)

	_, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})
	var exhausted *egress.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 0, rotator.Healthy())

	w.ResetPaths()
	assert.Equal(t, 2, rotator.Healthy())
}

func TestWorkerLookup_FallbackFailureMovesToNextPath(t *testing.T) {
	t.Parallel()

	want := &scholar.Result{Title: "Paper", Citations: 8}
	primary := &fakeBackend{name: "colly", script: func(call int, _ egress.Path) (*scholar.Result, error) {
		if call == 0 {
			return nil, &scholar.BlockedError{Reason: "captcha"}
		}
		return want, nil
	}}
	fallback := &fakeBackend{name: "chromedp", script: alwaysFail(&scholar.BlockedError{Reason: "captcha"})}

	pool := []string{
		"http://proxy-a.example.com:3128",
		"http://proxy-b.example.com:3128",
	}
	w := newTestWorker(proxyRotator(t, pool, 2), primary, fallback)
	res, err := w.Lookup(context.Background(), scholar.Query{Title: "Paper"})

	require.NoError(t, err)
	assert.Equal(t, want, res)
	require.Equal(t, 2, primary.callCount())
	assert.Equal(t, 1, fallback.callCount())
	assert.NotEqual(t, primary.calls[0], primary.calls[1], "retry must use a different path")
}

func TestWorkerAuthorListing(t *testing.T) {
	t.Parallel()

	t.Run("ListerCapablePrimary", func(t *testing.T) {
		primary := &fakeListerBackend{
			fakeBackend: fakeBackend{name: "colly", script: alwaysSucceed(nil)},
			listResults: []scholar.Result{
				{Title: "First paper", Citations: 5},
				{Title: "Second paper", Citations: 9},
			},
		}
		w := newTestWorker(directRotator(t), primary, nil)

		results, err := w.AuthorListing(context.Background(), "Virtanen", 19)
		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.Equal(t, 1, primary.listCalls)
	})

	t.Run("NonListerPrimary", func(t *testing.T) {
		primary := &fakeBackend{name: "plain", script: alwaysSucceed(nil)}
		w := newTestWorker(directRotator(t), primary, nil)

		results, err := w.AuthorListing(context.Background(), "Virtanen", 19)
		require.ErrorIs(t, err, ErrNoAuthorListing)
		assert.Nil(t, results)
		assert.Zero(t, primary.callCount())
	})

	t.Run("ListingFailureDoesNotEscalate", func(t *testing.T) {
		primary := &fakeListerBackend{
			fakeBackend: fakeBackend{name: "colly", script: alwaysSucceed(nil)},
			listErr:     &scholar.BlockedError{Reason: "captcha"},
		}
		fallback := &fakeBackend{name: "chromedp", script: alwaysSucceed(&scholar.Result{})}
		w := newTestWorker(directRotator(t), primary, fallback)

		_, err := w.AuthorListing(context.Background(), "Virtanen", 19)
		require.Error(t, err)
		assert.Equal(t, 0, fallback.callCount())
	})
}
