package renderer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// StaticConfig controls the HTTP-only renderer.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Static renders pages without JavaScript.
type Static struct {
	cfg  StaticConfig
	base *colly.Collector
	log  *zap.Logger
}

// NewStatic builds a Static renderer.
func NewStatic(cfg StaticConfig, logger *zap.Logger) *Static {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultNavigationTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(cfg.Transport)
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return &Static{cfg: cfg, base: c, log: logger}
}

// Render fetches url and extracts its content. Non-2xx responses yield a
// page with OK=false rather than an error.
func (s *Static) Render(ctx context.Context, url string) (search.Page, error) {
	page, body, err := s.fetch(ctx, url)
	if err != nil || !page.OK {
		return page, err
	}
	return s.extract(page, body)
}

// fetch performs the GET and returns the raw body alongside the status.
func (s *Static) fetch(ctx context.Context, url string) (search.Page, []byte, error) {
	var (
		page     search.Page
		body     []byte
		fetchErr error
	)
	collector := s.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.URL = r.Request.URL.String()
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			page.StatusCode = r.StatusCode
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return search.Page{}, nil, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && page.StatusCode == 0 {
			return search.Page{}, nil, fmt.Errorf("static visit: %w", timeoutAware(err))
		}
		if fetchErr != nil {
			return search.Page{}, nil, fmt.Errorf("static response: %w", timeoutAware(fetchErr))
		}
	}

	if page.URL == "" {
		page.URL = url
	}
	page.OK = page.StatusCode >= 200 && page.StatusCode < 300
	return page, body, nil
}

func (s *Static) extract(page search.Page, body []byte) (search.Page, error) {
	extracted, err := ExtractHTML(body)
	if err != nil {
		return search.Page{}, err
	}
	page.Title = extracted.Title
	page.Description = extracted.Description
	page.Text = extracted.Text
	s.log.Debug("static page rendered", zap.String("url", page.URL), zap.Int("status", page.StatusCode))
	return page, nil
}

// timeoutAware tags client timeouts so the classifier retries them.
func timeoutAware(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("navigation timeout: %w", err)
	}
	return err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
