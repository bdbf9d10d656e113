package frontier

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// TaskConfig controls how a single origin is crawled.
type TaskConfig struct {
	// URLScheme is prepended to seeded hostnames. Defaults to https.
	URLScheme string
	// ArchivePrefix is the object prefix for page text snapshots.
	ArchivePrefix string
	// EventTopic names the topic for document.indexed events.
	EventTopic string
}

// TaskDeps groups the collaborators of a crawl task. Validator, Robots,
// Archive, Hasher and Publisher are optional.
type TaskDeps struct {
	Validator search.TargetValidator
	Robots    search.RobotsChecker
	Renderer  search.Renderer
	Indexer   search.Indexer
	Archive   search.BlobStore
	Hasher    search.Hasher
	Publisher search.Publisher
	Clock     search.Clock
}

// Task crawls one origin end to end: validate, robots, render, index.
type Task struct {
	deps   TaskDeps
	cfg    TaskConfig
	logger *zap.Logger
}

// NewTask constructs a Task.
func NewTask(deps TaskDeps, cfg TaskConfig, logger *zap.Logger) (*Task, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if cfg.URLScheme == "" {
		cfg.URLScheme = "https"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "pages"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{deps: deps, cfg: cfg, logger: logger}, nil
}

// Crawl returns nil when the origin was indexed; any error is meant for Classify.
func (t *Task) Crawl(ctx context.Context, origin search.Origin) error {
	target := t.TargetURL(origin)

	if t.deps.Validator != nil {
		if err := t.deps.Validator.Validate(ctx, target); err != nil {
			return err
		}
	}
	if t.deps.Robots != nil && !t.deps.Robots.Allowed(ctx, target) {
		return fmt.Errorf("%w: %s", search.ErrRobotsDisallowed, target)
	}

	start := time.Now()
	page, err := t.deps.Renderer.Render(ctx, target)
	metrics.ObserveRender(time.Since(start))
	if err != nil {
		return fmt.Errorf("render %s: %w", target, err)
	}
	if !page.OK {
		return fmt.Errorf("%w: %s returned status %d", search.ErrPageNotOK, target, page.StatusCode)
	}

	doc, err := t.deps.Indexer.Index(ctx, search.DocumentInput{
		URL:         target,
		Title:       page.Title,
		Description: page.Description,
		Text:        page.Text,
		Rank:        origin.Rank,
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", target, err)
	}

	t.archive(ctx, doc, page.Text)
	t.publish(ctx, doc)
	return nil
}

// TargetURL builds the crawl URL for an origin.
func (t *Task) TargetURL(origin search.Origin) string {
	if strings.Contains(origin.URL, "://") {
		return origin.URL
	}
	return t.cfg.URLScheme + "://" + origin.URL
}

func (t *Task) archive(ctx context.Context, doc search.Document, text string) {
	if t.deps.Archive == nil || t.deps.Hasher == nil {
		return
	}
	key, err := t.deps.Hasher.Hash([]byte(doc.URL))
	if err != nil {
		t.logger.Warn("archive key hash failed", zap.String("url", doc.URL), zap.Error(err))
		return
	}
	objectPath := path.Join(t.cfg.ArchivePrefix, t.now().Format("2006-01-02"), key+".txt")
	uri, err := t.deps.Archive.PutObject(ctx, objectPath, "text/plain; charset=utf-8", strings.NewReader(text))
	if err != nil {
		t.logger.Warn("archive page text failed", zap.String("url", doc.URL), zap.Error(err))
		return
	}
	t.logger.Debug("archived page text", zap.String("url", doc.URL), zap.String("uri", uri))
}

func (t *Task) publish(ctx context.Context, doc search.Document) {
	if t.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"document_id": doc.ID,
		"url":         doc.URL,
		"rank":        doc.Rank,
		"word_count":  doc.WordCount,
		"indexed_at":  t.now().Format(time.RFC3339),
	}
	if _, err := t.deps.Publisher.Publish(ctx, t.cfg.EventTopic, payload); err != nil {
		t.logger.Warn("publish document event failed", zap.String("url", doc.URL), zap.Error(err))
	}
}

func (t *Task) now() time.Time {
	if t.deps.Clock != nil {
		return t.deps.Clock.Now()
	}
	return time.Now().UTC()
}
