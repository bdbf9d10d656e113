package renderer

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// headless is a renderer with a browser lifecycle.
type headless interface {
	search.Renderer
	Start(ctx context.Context) error
	Close() error
}

// Hybrid fetches every page statically and hands client-rendered pages to a
// browser.
type Hybrid struct {
	static  *Static
	browser headless
	detect  *Detector
	log     *zap.Logger
}

// NewHybrid combines a static fetcher with a browser fallback.
func NewHybrid(static *Static, browser headless, detect *Detector, logger *zap.Logger) *Hybrid {
	if detect == nil {
		detect = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hybrid{static: static, browser: browser, detect: detect, log: logger}
}

// Start launches the browser fallback.
func (h *Hybrid) Start(ctx context.Context) error {
	return h.browser.Start(ctx)
}

// Close shuts the browser fallback down.
func (h *Hybrid) Close() error {
	return h.browser.Close()
}

// Render returns the static result unless the detector asks for a browser.
func (h *Hybrid) Render(ctx context.Context, url string) (search.Page, error) {
	page, body, err := h.static.fetch(ctx, url)
	if err != nil {
		return search.Page{}, err
	}
	if !h.detect.NeedsBrowser(page.StatusCode, body) {
		if !page.OK {
			return page, nil
		}
		return h.static.extract(page, body)
	}
	h.log.Debug("promoting page to browser", zap.String("url", url), zap.Int("bytes", len(body)))
	return h.browser.Render(ctx, url)
}
