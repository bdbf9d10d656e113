package frontier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func()
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeGate struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	err      error
}

func (g *fakeGate) Acquire(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	return nil
}

func (g *fakeGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
}

func (g *fakeGate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

type crawlFunc func(ctx context.Context, origin search.Origin) error

func (f crawlFunc) Crawl(ctx context.Context, origin search.Origin) error {
	return f(ctx, origin)
}

type failingUpdateStore struct {
	search.OriginStore
	err error
}

func (s failingUpdateStore) UpdateOrigin(context.Context, search.OriginUpdate) error {
	return s.err
}

type fakeValidator struct {
	invalid map[string]bool
}

func (v fakeValidator) Validate(_ context.Context, url string) error {
	if v.invalid[url] {
		return fmt.Errorf("%w: %s: lookup failed", search.ErrInvalidTarget, url)
	}
	return nil
}

type fakeRobots struct {
	disallowed map[string]bool
}

func (r fakeRobots) Allowed(_ context.Context, url string) bool {
	return !r.disallowed[url]
}

type fakeRenderer struct {
	mu    sync.Mutex
	pages map[string]search.Page
	errs  map[string]error
	calls []string
}

func (r *fakeRenderer) Render(_ context.Context, url string) (search.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, url)
	if err, ok := r.errs[url]; ok {
		return search.Page{}, err
	}
	if page, ok := r.pages[url]; ok {
		return page, nil
	}
	return search.Page{}, errors.New("no fixture for " + url)
}

type fakeIndexer struct {
	mu    sync.Mutex
	err   error
	input []search.DocumentInput
}

func (f *fakeIndexer) Index(_ context.Context, in search.DocumentInput) (search.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return search.Document{}, f.err
	}
	f.input = append(f.input, in)
	return search.Document{ID: "doc-1", URL: in.URL, Rank: in.Rank, WordCount: 2}, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (b *fakeBlobs) PutObject(_ context.Context, path, _ string, data io.Reader) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string]string{}
	}
	b.objects[path] = string(raw)
	return "memory://" + path, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("h%d", len(data)), nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}
