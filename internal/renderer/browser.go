package renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// DefaultNavigationTimeout bounds a single page load.
const DefaultNavigationTimeout = 120 * time.Second

const (
	descriptionScript = `(() => { const d = document.querySelector('meta[name="description"]'); return d ? (d.getAttribute("content") || "") : ""; })()`
	bodyTextScript    = `document.body ? document.body.innerText : ""`
)

// BrowserConfig controls the headless browser.
type BrowserConfig struct {
	NavigationTimeout time.Duration
	UserAgent         string
	ExecPath          string
	NoSandbox         bool
	// BlockedResources lists resource types aborted before download.
	BlockedResources []network.ResourceType
}

// Browser renders pages in headless Chrome. Each Render runs in its own
// browser context so cookies and storage never leak between tasks.
type Browser struct {
	cfg    BrowserConfig
	logger *zap.Logger

	mu          sync.RWMutex
	browserCtx  context.Context
	allocCancel context.CancelFunc
	cancel      context.CancelFunc
}

// NewBrowser constructs a Browser. Call Start before rendering.
func NewBrowser(cfg BrowserConfig, logger *zap.Logger) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.BlockedResources == nil {
		cfg.BlockedResources = []network.ResourceType{
			network.ResourceTypeImage,
			network.ResourceTypeFont,
			network.ResourceTypeMedia,
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}
}

// Start launches Chrome. It is a no-op when already started.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}

	// The browser outlives ctx; ctx only bounds the launch.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	launch := make(chan error, 1)
	go func() { launch <- chromedp.Run(browserCtx) }()
	select {
	case err := <-launch:
		if err != nil {
			cancel()
			allocCancel()
			return fmt.Errorf("launch browser: %w", err)
		}
	case <-ctx.Done():
		cancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", ctx.Err())
	}

	b.browserCtx = browserCtx
	b.cancel = cancel
	b.allocCancel = allocCancel
	b.logger.Info("headless browser started", zap.Duration("nav_timeout", b.cfg.NavigationTimeout))
	return nil
}

// Close shuts the browser down. Later renders fail with ErrRendererUnavailable.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserCtx == nil {
		return nil
	}
	b.cancel()
	b.allocCancel()
	b.browserCtx = nil
	b.logger.Info("headless browser stopped")
	return nil
}

// Render loads url in a fresh browser context.
func (b *Browser) Render(ctx context.Context, url string) (search.Page, error) {
	b.mu.RLock()
	parent := b.browserCtx
	b.mu.RUnlock()
	if parent == nil {
		return search.Page{}, search.ErrRendererUnavailable
	}

	tabCtx, cancelTab := chromedp.NewContext(parent, chromedp.WithNewBrowserContext())
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancelTask()
	stop := context.AfterFunc(ctx, cancelTask)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			meta.capture(e)
		case *fetch.EventRequestPaused:
			go b.interceptRequest(taskCtx, e)
		}
	})

	var title, description, text string
	err := chromedp.Run(taskCtx,
		b.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Evaluate(descriptionScript, &description),
		chromedp.Evaluate(bodyTextScript, &text),
	)
	if err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return search.Page{}, fmt.Errorf("navigation timeout of %s exceeded: %w", b.cfg.NavigationTimeout, err)
		}
		if parentErr := b.unavailable(parent); parentErr != nil {
			return search.Page{}, fmt.Errorf("%w: %w", parentErr, err)
		}
		return search.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, finalURL := meta.snapshot()
	if finalURL == "" {
		finalURL = url
	}
	return search.Page{
		OK:          status >= 200 && status < 300,
		StatusCode:  status,
		URL:         finalURL,
		Title:       title,
		Description: description,
		Text:        text,
	}, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(b.cfg.BlockedResources) > 0 {
			if err := fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}).Do(ctx); err != nil {
				return fmt.Errorf("enable request interception: %w", err)
			}
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) interceptRequest(ctx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(ctx, c.Target)
	var err error
	if b.blocked(ev.ResourceType) {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	}
	if err != nil && ctx.Err() == nil {
		b.logger.Debug("request interception failed", zap.String("request_id", string(ev.RequestID)), zap.Error(err))
	}
}

func (b *Browser) blocked(t network.ResourceType) bool {
	for _, blocked := range b.cfg.BlockedResources {
		if blocked == t {
			return true
		}
	}
	return false
}

// unavailable reports ErrRendererUnavailable when the shared browser died
// or was closed while the render was in flight.
func (b *Browser) unavailable(parent context.Context) error {
	b.mu.RLock()
	closed := b.browserCtx == nil
	b.mu.RUnlock()
	if closed || parent.Err() != nil {
		return search.ErrRendererUnavailable
	}
	return nil
}

type responseMeta struct {
	mu     sync.Mutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

// capture records the first document response, which is the navigation
// target after redirects settle.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.url
}
