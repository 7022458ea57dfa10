package scholar

import (
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

func TestNewHeadlessBackendDisabled(t *testing.T) {
	t.Parallel()

	backend, err := NewHeadlessBackend(HeadlessConfig{Enabled: false}, zap.NewNop())
	if !errors.Is(err, ErrHeadlessDisabled) {
		t.Fatalf("err = %v; want ErrHeadlessDisabled", err)
	}
	if backend != nil {
		t.Fatalf("expected nil backend, got %+v", backend)
	}
}

func TestNewHeadlessBackendTimeoutDefault(t *testing.T) {
	t.Parallel()

	backend, err := NewHeadlessBackend(HeadlessConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if backend.cfg.Timeout != 60*time.Second {
		t.Errorf("default timeout = %v; want 60s", backend.cfg.Timeout)
	}

	backend, err = NewHeadlessBackend(HeadlessConfig{Enabled: true, Timeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if backend.cfg.Timeout != 5*time.Second {
		t.Errorf("timeout = %v; want override to be kept", backend.cfg.Timeout)
	}
}

func TestResponseMetaCaptureAndSnapshot(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 200,
			URL:    "https://scholar.google.com/scholar?q=x",
		},
	})
	status, url := meta.snapshot("https://req")
	if status != 200 || url != "https://scholar.google.com/scholar?q=x" {
		t.Fatalf("snapshot = %d %q; want captured response", status, url)
	}

	// A later document response replaces the first, so a redirect chain
	// reports its landing page.
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 200,
			URL:    "https://www.google.com/sorry/index",
		},
	})
	_, url = meta.snapshot("https://req")
	if url != "https://www.google.com/sorry/index" {
		t.Fatalf("snapshot url = %q; want redirect landing page", url)
	}

	// Non-document responses never overwrite the page metadata.
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://cdn/x.png"},
	})
	status, url = meta.snapshot("https://req")
	if status != 200 || url != "https://www.google.com/sorry/index" {
		t.Fatalf("snapshot = %d %q; want document response preserved", status, url)
	}
}

func TestResponseMetaSnapshotFallback(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	status, url := meta.snapshot("https://req")
	if status != 0 || url != "https://req" {
		t.Fatalf("snapshot = %d %q; want request URL fallback", status, url)
	}
}
