package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Policy selects how a robots.txt body is evaluated.
type Policy string

// Supported policies.
const (
	// PolicyRoot only honours "Disallow: /" inside a "User-agent: *" block.
	PolicyRoot Policy = "root"
	// PolicyAgent tests "/" against the group matching the crawler's user agent.
	PolicyAgent Policy = "agent"
)

const maxBodyBytes = 1 << 20

// Config controls robots.txt fetching.
type Config struct {
	Policy    Policy
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Checker fetches robots.txt per host and caches the decision.
type Checker struct {
	client    *http.Client
	policy    Policy
	userAgent string
	cache     *gocache.Cache
	logger    *zap.Logger
}

// NewChecker builds a Checker. Unknown policies are rejected.
func NewChecker(cfg Config, logger *zap.Logger) (*Checker, error) {
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyRoot
	case PolicyRoot, PolicyAgent:
	default:
		return nil, fmt.Errorf("unknown robots policy %q", cfg.Policy)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newRetryTransport(cfg.Transport),
		},
		policy:    cfg.Policy,
		userAgent: cfg.UserAgent,
		cache:     gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:    logger,
	}, nil
}

// Allowed reports whether the site root may be crawled. Fetch failures and
// non-2xx responses allow access.
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}
	hostKey := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if cached, ok := c.cache.Get(hostKey); ok {
		if allowed, ok := cached.(bool); ok {
			return allowed
		}
	}

	allowed := c.decide(ctx, parsed)
	c.cache.SetDefault(hostKey, allowed)
	return allowed
}

func (c *Checker) decide(ctx context.Context, parsed *url.URL) bool {
	status, body, err := c.fetch(ctx, parsed)
	if err != nil {
		c.logger.Debug("robots fetch failed, allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	if status < 200 || status > 299 {
		return true
	}
	switch c.policy {
	case PolicyAgent:
		data, err := robotstxt.FromStatusAndBytes(status, body)
		if err != nil {
			c.logger.Debug("robots parse failed, allowing access", zap.String("host", parsed.Host), zap.Error(err))
			return true
		}
		group := data.FindGroup(c.userAgent)
		if group == nil {
			return true
		}
		return group.Test("/")
	default:
		return !IsRootForbidden(string(body))
	}
}

func (c *Checker) fetch(ctx context.Context, parsed *url.URL) (int, []byte, error) {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read robots body: %w", err)
	}
	return resp.StatusCode, body, nil
}
