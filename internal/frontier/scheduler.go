package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/metrics"
	"github.com/JakeFAU/realtime-search-crawler/internal/search"
)

// Diagnostics written to Origin.LastError.
const (
	LastErrorPermanent        = "permanent failure"
	LastErrorRetryable        = "retryable error, deferred"
	LastErrorUnexpectedPrefix = "unexpected error: "
)

// DefaultIdleSleep is the pause after an empty batch.
const DefaultIdleSleep = 60 * time.Second

// Outcome is the terminal result of one crawl task.
type Outcome string

// Task outcomes.
const (
	OutcomeSuccess    Outcome = "success"
	OutcomePermanent  Outcome = "permanent"
	OutcomeRetryable  Outcome = "retryable"
	OutcomeUnexpected Outcome = "unexpected"
	OutcomeSkipped    Outcome = "skipped"
)

// Crawler runs a single crawl task. *Task is the production implementation.
type Crawler interface {
	Crawl(ctx context.Context, origin search.Origin) error
}

// Gate bounds concurrently running tasks. *throttle.Throttle implements it.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
	InFlight() int
}

// Config controls the scheduling loop.
type Config struct {
	Concurrency int
	IdleSleep   time.Duration
	Backoff     BackoffPolicy
}

// TaskResult reports what happened to one origin in a batch.
type TaskResult struct {
	Origin  search.Origin
	Outcome Outcome
	Err     error
	Update  search.OriginUpdate
}

// BatchReport summarizes one scheduler iteration.
type BatchReport struct {
	Mode    search.Mode
	Results []TaskResult
}

// PanicError wraps a value recovered from a crashing task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type state int

const (
	stateFirstPass state = iota
	stateBacklog
	stateIdle
)

// Scheduler owns the crawl loop over the origin frontier.
type Scheduler struct {
	store   search.OriginStore
	crawler Crawler
	gate    Gate
	clock   search.Clock
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	backlog bool
}

// NewScheduler constructs a Scheduler in first-pass mode.
func NewScheduler(
	store search.OriginStore,
	crawler Crawler,
	gate Gate,
	clock search.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Scheduler, error) {
	if store == nil || crawler == nil || gate == nil || clock == nil {
		return nil, fmt.Errorf("scheduler requires store, crawler, gate and clock")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("scheduler concurrency must be > 0")
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = DefaultIdleSleep
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = NewBackoffPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:   store,
		crawler: crawler,
		gate:    gate,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Mode reports the current selection mode.
func (s *Scheduler) Mode() search.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backlog {
		return search.ModeBacklog
	}
	return search.ModeFirstPass
}

// Run loops until ctx is canceled. In-flight batches always settle first.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("frontier scheduler started",
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Duration("idle_sleep", s.cfg.IdleSleep),
		zap.String("mode", string(s.Mode())),
	)
	current := s.modeState()
	for ctx.Err() == nil {
		switch current {
		case stateIdle:
			s.logger.Debug("nothing to crawl right now, sleeping", zap.Duration("interval", s.cfg.IdleSleep))
			if err := s.clock.Sleep(ctx, s.cfg.IdleSleep); err != nil && ctx.Err() == nil {
				return fmt.Errorf("idle sleep: %w", err)
			}
			current = s.modeState()
		case stateFirstPass, stateBacklog:
			report, err := s.RunOnce(ctx)
			switch {
			case err != nil:
				s.logger.Error("frontier iteration failed", zap.Error(err))
				current = stateIdle
			case len(report.Results) == 0:
				current = stateIdle
			default:
				current = s.modeState()
			}
		}
	}
	s.logger.Info("frontier scheduler stopped")
	return nil
}

// RunOnce selects one batch, crawls it concurrently and waits for every task
// to settle before returning.
func (s *Scheduler) RunOnce(ctx context.Context) (BatchReport, error) {
	mode := s.Mode()
	batch, err := s.store.SelectOrigins(ctx, search.Selection{
		Mode:  mode,
		Now:   s.clock.Now(),
		Limit: s.cfg.Concurrency,
	})
	if err != nil {
		return BatchReport{Mode: mode}, fmt.Errorf("select origins: %w", err)
	}
	metrics.ObserveBatch(len(batch))
	s.logger.Debug("selected batch", zap.String("mode", string(mode)), zap.Int("size", len(batch)))

	if mode == search.ModeFirstPass && allAttempted(batch) {
		s.enterBacklog()
	}
	if len(batch) == 0 {
		return BatchReport{Mode: mode}, nil
	}

	return BatchReport{Mode: mode, Results: s.dispatch(ctx, batch)}, nil
}

func (s *Scheduler) dispatch(ctx context.Context, batch []search.Origin) []TaskResult {
	taskCtx := context.WithoutCancel(ctx)
	results := make([]TaskResult, len(batch))
	var wg sync.WaitGroup
	for i, origin := range batch {
		wg.Add(1)
		go func(i int, origin search.Origin) {
			defer wg.Done()
			results[i] = s.runTask(taskCtx, origin)
		}(i, origin)
	}
	wg.Wait()
	return results
}

func (s *Scheduler) runTask(ctx context.Context, origin search.Origin) TaskResult {
	logger := s.logger.With(zap.String("origin", origin.URL), zap.Int("rank", origin.Rank))
	if err := s.gate.Acquire(ctx); err != nil {
		logger.Warn("throttle admission failed, origin left for next batch", zap.Error(err))
		return TaskResult{Origin: origin, Outcome: OutcomeSkipped, Err: err}
	}
	metrics.SetInflight(s.gate.InFlight())
	defer func() {
		s.gate.Release()
		metrics.SetInflight(s.gate.InFlight())
	}()

	logger.Info("starting crawl")
	err := s.crawlSafely(ctx, origin)
	outcome := outcomeOf(err)
	update := s.updateFor(origin, outcome, err, s.clock.Now())

	switch outcome {
	case OutcomeSuccess:
		logger.Info("origin indexed")
	case OutcomePermanent:
		logger.Warn("permanent failure", zap.Error(err))
	case OutcomeRetryable:
		logger.Warn("retryable failure, deferred",
			zap.Int("attempt", update.AttemptCount),
			zap.Timep("next_attempt", update.NextAttempt),
			zap.Error(err),
		)
	case OutcomeUnexpected:
		logger.Error("unexpected task failure", zap.Error(err))
	}
	metrics.ObserveOutcome(string(outcome))

	if perr := s.store.UpdateOrigin(ctx, update); perr != nil {
		logger.Error("persist origin outcome failed", zap.String("outcome", string(outcome)), zap.Error(perr))
		metrics.ObservePersistFailure()
	}
	return TaskResult{Origin: origin, Outcome: outcome, Err: err, Update: update}
}

func (s *Scheduler) crawlSafely(ctx context.Context, origin search.Origin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return s.crawler.Crawl(ctx, origin)
}

func (s *Scheduler) updateFor(origin search.Origin, outcome Outcome, err error, now time.Time) search.OriginUpdate {
	update := search.OriginUpdate{
		ID:           origin.ID,
		Scraped:      origin.Scraped,
		AttemptCount: origin.AttemptCount,
		NextAttempt:  origin.NextAttempt,
		LastError:    origin.LastError,
	}
	switch outcome {
	case OutcomeSuccess:
		update.Scraped = true
		update.LastError = nil
	case OutcomePermanent:
		update.Scraped = true
		update.LastError = stringPtr(LastErrorPermanent)
	case OutcomeRetryable:
		update.AttemptCount++
		next := s.cfg.Backoff.NextAttempt(now, update.AttemptCount)
		update.NextAttempt = &next
		update.LastError = stringPtr(LastErrorRetryable)
	case OutcomeUnexpected:
		update.Scraped = true
		update.LastError = stringPtr(LastErrorUnexpectedPrefix + err.Error())
	}
	return update
}

func (s *Scheduler) enterBacklog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backlog {
		return
	}
	s.backlog = true
	metrics.SetBacklogMode(true)
	s.logger.Info("first pass complete, switching to backlog mode")
}

func (s *Scheduler) modeState() state {
	if s.Mode() == search.ModeBacklog {
		return stateBacklog
	}
	return stateFirstPass
}

// allAttempted is vacuously true for an empty batch.
func allAttempted(batch []search.Origin) bool {
	for _, o := range batch {
		if o.AttemptCount == 0 {
			return false
		}
	}
	return true
}

func outcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return OutcomeUnexpected
	}
	switch Classify(err) {
	case ClassRetryable:
		return OutcomeRetryable
	case ClassUnexpected:
		return OutcomeUnexpected
	default:
		return OutcomePermanent
	}
}

func stringPtr(s string) *string {
	return &s
}
