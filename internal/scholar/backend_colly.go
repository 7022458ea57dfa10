package scholar

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/egress"
)

// CollyConfig tunes the plain HTTP backend.
type CollyConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	// BaseURL overrides the Scholar endpoint, empty means the real one.
	BaseURL string
}

// CollyBackend fetches Scholar pages with plain HTTP requests. It is
// the primary backend and also serves broad author listings.
type CollyBackend struct {
	cfg    CollyConfig
	logger *zap.Logger
}

// NewCollyBackend constructs the plain HTTP backend.
func NewCollyBackend(cfg CollyConfig, logger *zap.Logger) *CollyBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollyBackend{cfg: cfg, logger: logger}
}

// Name implements Backend.
func (b *CollyBackend) Name() string {
	return "colly"
}

// Fetch implements Backend.
func (b *CollyBackend) Fetch(ctx context.Context, q Query, path egress.Path) (*Result, error) {
	page, err := b.fetchPage(ctx, q.URLAt(b.base()), path)
	if err != nil {
		return nil, err
	}
	return firstResult(page.body, page.finalURL)
}

// ListByAuthor implements AuthorLister.
func (b *CollyBackend) ListByAuthor(ctx context.Context, author string, limit int, path egress.Path) ([]Result, error) {
	page, err := b.fetchPage(ctx, AuthorListURLAt(b.base(), author, limit), path)
	if err != nil {
		return nil, err
	}
	return parseResults(page.body, page.finalURL)
}

func (b *CollyBackend) base() string {
	if b.cfg.BaseURL != "" {
		return b.cfg.BaseURL
	}
	return BaseURL
}

type fetchedPage struct {
	statusCode int
	finalURL   string
	body       []byte
}

type collyResult struct {
	page fetchedPage
	err  error
}

// newCollector builds a collector for one fetch. Collectors are not
// reused across fetches: colly clones share the HTTP backend, so a
// per-path proxy set on one clone would leak into every other path.
func (b *CollyBackend) newCollector(path egress.Path) *colly.Collector {
	collector := colly.NewCollector(
		colly.UserAgent(b.cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	// Scholar's robots.txt disallows /scholar, so honoring it would
	// reject every query before it leaves the process.
	collector.IgnoreRobotsTxt = true

	transport := &http.Transport{
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if !path.Direct() {
		transport.Proxy = http.ProxyURL(path.ProxyURL)
	}
	collector.WithTransport(transport)

	if b.cfg.RequestTimeout > 0 {
		collector.SetRequestTimeout(b.cfg.RequestTimeout)
	}
	return collector
}

func (b *CollyBackend) fetchPage(ctx context.Context, rawURL string, path egress.Path) (fetchedPage, error) {
	if err := ctx.Err(); err != nil {
		return fetchedPage{}, err
	}

	collector := b.newCollector(path)
	resultCh := make(chan collyResult, 1)
	var once sync.Once
	send := func(res collyResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(collyResult{page: fetchedPage{
			statusCode: r.StatusCode,
			finalURL:   r.Request.URL.String(),
			body:       append([]byte{}, r.Body...),
		}})
	})

	collector.OnError(func(r *colly.Response, err error) {
		res := collyResult{err: err}
		if res.err == nil {
			res.err = errors.New("unknown colly error")
		}
		if r != nil {
			res.page.statusCode = r.StatusCode
			res.page.body = append([]byte{}, r.Body...)
			if r.Request != nil && r.Request.URL != nil {
				res.page.finalURL = r.Request.URL.String()
			}
		}
		send(res)
	})

	// Visit reports non-2xx statuses as errors itself, but the OnError
	// callback has already captured the response by then. Prefer the
	// captured response so a 403 classifies as blocked, not as a
	// transport failure.
	visitErr := collector.Visit(rawURL)
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return fetchedPage{}, err
		}
		return classifyPage(res, rawURL)
	default:
	}
	if visitErr != nil {
		return fetchedPage{}, &NetworkError{Err: visitErr}
	}
	return fetchedPage{}, &NetworkError{Err: errors.New("fetch produced no result")}
}

func classifyPage(res collyResult, rawURL string) (fetchedPage, error) {
	page := res.page
	if page.finalURL == "" {
		page.finalURL = rawURL
	}
	switch {
	case page.statusCode == http.StatusForbidden || page.statusCode == http.StatusTooManyRequests:
		reason, _ := blockSignal(page.statusCode, page.finalURL, page.body)
		return fetchedPage{}, &BlockedError{Reason: reason, StatusCode: page.statusCode}
	case res.err != nil:
		return fetchedPage{}, &NetworkError{Err: res.err}
	default:
		if reason, blocked := blockSignal(page.statusCode, page.finalURL, page.body); blocked {
			return fetchedPage{}, &BlockedError{Reason: reason, StatusCode: page.statusCode}
		}
		return page, nil
	}
}
