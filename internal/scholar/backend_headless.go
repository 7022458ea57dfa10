package scholar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-cites/internal/egress"
)

// ErrHeadlessDisabled indicates the fallback backend has been disabled
// via configuration.
var ErrHeadlessDisabled = errors.New("headless backend disabled")

// HeadlessConfig tunes the headless Chrome fallback backend.
type HeadlessConfig struct {
	Enabled   bool
	UserAgent string
	Timeout   time.Duration
	// BaseURL overrides the Scholar endpoint, empty means the real one.
	BaseURL string
}

// HeadlessBackend drives headless Chrome for pages the plain backend
// cannot get past. A fresh browser is launched per fetch because the
// proxy is fixed at browser launch, not per tab.
type HeadlessBackend struct {
	cfg    HeadlessConfig
	logger *zap.Logger
}

// NewHeadlessBackend constructs the fallback backend. It returns
// ErrHeadlessDisabled when configuration turns the fallback off.
func NewHeadlessBackend(cfg HeadlessConfig, logger *zap.Logger) (*HeadlessBackend, error) {
	if !cfg.Enabled {
		return nil, ErrHeadlessDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HeadlessBackend{cfg: cfg, logger: logger}, nil
}

// Name implements Backend.
func (b *HeadlessBackend) Name() string {
	return "chromedp"
}

// Fetch implements Backend.
func (b *HeadlessBackend) Fetch(ctx context.Context, q Query, path egress.Path) (*Result, error) {
	base := b.cfg.BaseURL
	if base == "" {
		base = BaseURL
	}
	page, err := b.render(ctx, q.URLAt(base), path)
	if err != nil {
		return nil, err
	}
	if reason, blocked := blockSignal(page.statusCode, page.finalURL, page.body); blocked {
		return nil, &BlockedError{Reason: reason, StatusCode: page.statusCode}
	}
	return firstResult(page.body, page.finalURL)
}

func (b *HeadlessBackend) render(ctx context.Context, rawURL string, path egress.Path) (fetchedPage, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(b.cfg.UserAgent),
	)
	if !path.Direct() {
		// Chrome takes the proxy as a launch flag. Credentials in the
		// proxy URL are not supported on this backend.
		opts = append(opts, chromedp.ProxyServer(path.ProxyURL.Scheme+"://"+path.ProxyURL.Host))
	}

	allocatorCtx, cancelAllocator := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAllocator()

	tabCtx, cancelTab := chromedp.NewContext(allocatorCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancelTask()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(b.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fetchedPage{}, ctxErr
		}
		return fetchedPage{}, &NetworkError{Err: fmt.Errorf("chromedp run: %w", err)}
	}

	status, finalURL := meta.snapshot(rawURL)
	return fetchedPage{
		statusCode: status,
		finalURL:   finalURL,
		body:       []byte(html),
	}, nil
}

// responseMeta records the document response seen during navigation. The
// last document response wins, so a redirect chain reports where the
// browser actually landed.
type responseMeta struct {
	mu         sync.RWMutex
	statusCode int
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.statusCode = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot(requestURL string) (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.url == "" {
		return m.statusCode, requestURL
	}
	return m.statusCode, m.url
}
