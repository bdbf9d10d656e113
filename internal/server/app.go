// Package server builds the application graph and runs the crawler and query API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-search-crawler/internal/api"
	"github.com/JakeFAU/realtime-search-crawler/internal/clock/system"
	"github.com/JakeFAU/realtime-search-crawler/internal/config"
	"github.com/JakeFAU/realtime-search-crawler/internal/frontier"
	"github.com/JakeFAU/realtime-search-crawler/internal/hash/sha256"
	"github.com/JakeFAU/realtime-search-crawler/internal/id/uuid"
	"github.com/JakeFAU/realtime-search-crawler/internal/index"
	"github.com/JakeFAU/realtime-search-crawler/internal/lemma"
	"github.com/JakeFAU/realtime-search-crawler/internal/metrics"
	memorypublisher "github.com/JakeFAU/realtime-search-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/realtime-search-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-search-crawler/internal/ranking"
	"github.com/JakeFAU/realtime-search-crawler/internal/renderer"
	"github.com/JakeFAU/realtime-search-crawler/internal/robots"
	"github.com/JakeFAU/realtime-search-crawler/internal/search"
	"github.com/JakeFAU/realtime-search-crawler/internal/seed"
	gcsstorage "github.com/JakeFAU/realtime-search-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/realtime-search-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-search-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-search-crawler/internal/storage/postgres"
	"github.com/JakeFAU/realtime-search-crawler/internal/throttle"
)

// defaultShutdownGrace applies when crawler.shutdown_grace_seconds is unset.
const defaultShutdownGrace = 30 * time.Second

// Store is everything the crawler and the query API need from persistence.
type Store interface {
	search.OriginStore
	search.OriginSeeder
	search.DocumentWriter
	search.CandidateReader
	Ping(ctx context.Context) error
}

// renderService is a renderer with an explicit lifecycle.
type renderService interface {
	search.Renderer
	Start(ctx context.Context) error
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     Store
	pg        *pgstore.Store
	renderer  search.Renderer
	scheduler *frontier.Scheduler
	seeder    *seed.Seeder
	apiServer *api.Server

	closers []func() error
}

// Build creates the application's dependencies. Nothing is started yet.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
		zap.String("renderer", cfg.Renderer.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("postgres", cfg.Database.DSN != ""),
	)

	if err := app.setupStore(ctx); err != nil {
		return nil, app.abort(err)
	}

	fallback, err := lemma.ParseFallback(cfg.Lemma.Fallback)
	if err != nil {
		return nil, app.abort(fmt.Errorf("lemma fallback: %w", err))
	}
	dict, err := lemma.Load(cfg.Lemma.DictionaryPath, fallback, logger.Named("lemma"))
	if err != nil {
		return nil, app.abort(fmt.Errorf("load lemma dictionary: %w", err))
	}

	engine, err := ranking.NewEngine(app.store, dict, logger.Named("ranking"))
	if err != nil {
		return nil, app.abort(fmt.Errorf("ranking engine init failed: %w", err))
	}
	app.apiServer = api.NewServer(engine, app.store, api.Config{
		RequestTimeout: cfg.Server.RequestTimeout(),
		CacheTTL:       cfg.Search.CacheTTL(),
		AllowedOrigin:  cfg.Server.CORSOrigin,
	}, logger.Named("api"))

	app.seeder, err = seed.NewSeeder(app.store, cfg.Crawler.SeedBatchSize, logger.Named("seed"))
	if err != nil {
		return nil, app.abort(fmt.Errorf("seeder init failed: %w", err))
	}

	if err := app.setupCrawler(ctx, dict); err != nil {
		return nil, app.abort(err)
	}
	return app, nil
}

// abort releases whatever Build had opened before err.
func (a *App) abort(err error) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i](); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	a.closers = nil
	return err
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database DSN configured, using the in-memory store")
		a.store = memorystorage.NewStore()
		return nil
	}
	pg, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.Database.DSN,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.Database.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pg = pg
	a.store = pg
	a.closers = append(a.closers, func() error { pg.Close(); return nil })
	a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	return nil
}

func (a *App) setupCrawler(ctx context.Context, dict *lemma.Dictionary) error {
	cfg := a.cfg
	indexer, err := index.NewIndexer(a.store, dict, uuid.New(), a.logger.Named("index"))
	if err != nil {
		return fmt.Errorf("indexer init failed: %w", err)
	}

	checker, err := robots.NewChecker(robots.Config{
		Policy:    robots.Policy(cfg.Crawler.RobotsPolicy),
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   time.Duration(cfg.Crawler.RobotsTimeoutSeconds) * time.Second,
		CacheTTL:  time.Duration(cfg.Crawler.RobotsCacheTTLSeconds) * time.Second,
	}, a.logger.Named("robots"))
	if err != nil {
		return fmt.Errorf("robots checker init failed: %w", err)
	}

	a.renderer = a.newRenderer()

	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	clock := system.New()
	deps := frontier.TaskDeps{
		Robots:    checker,
		Renderer:  a.renderer,
		Indexer:   indexer,
		Archive:   archive,
		Hasher:    sha256.New(),
		Publisher: publisher,
		Clock:     clock,
	}
	if cfg.Crawler.ValidateDNS {
		deps.Validator = frontier.NewDNSValidator(nil)
	}
	task, err := frontier.NewTask(deps, frontier.TaskConfig{
		URLScheme:     cfg.Crawler.URLScheme,
		ArchivePrefix: cfg.Archive.Prefix,
		EventTopic:    cfg.Events.Topic,
	}, a.logger.Named("task"))
	if err != nil {
		return fmt.Errorf("crawl task init failed: %w", err)
	}

	gate, err := throttle.New(cfg.Crawler.Concurrency)
	if err != nil {
		return fmt.Errorf("throttle init failed: %w", err)
	}
	a.scheduler, err = frontier.NewScheduler(a.store, task, gate, clock, frontier.Config{
		Concurrency: cfg.Crawler.Concurrency,
		IdleSleep:   cfg.Crawler.IdleSleep(),
		Backoff: frontier.BackoffPolicy{
			Base:   cfg.Crawler.BackoffBase(),
			MaxExp: cfg.Crawler.BackoffMaxExp,
		},
	}, a.logger.Named("frontier"))
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	return nil
}

func (a *App) newRenderer() search.Renderer {
	cfg := a.cfg
	static := func() *renderer.Static {
		return renderer.NewStatic(renderer.StaticConfig{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.Renderer.NavTimeout(),
		}, a.logger.Named("renderer"))
	}
	browser := func() *renderer.Browser {
		return renderer.NewBrowser(renderer.BrowserConfig{
			NavigationTimeout: cfg.Renderer.NavTimeout(),
			UserAgent:         cfg.Crawler.UserAgent,
			ExecPath:          cfg.Renderer.ExecPath,
			NoSandbox:         cfg.Renderer.NoSandbox,
		}, a.logger.Named("renderer"))
	}

	switch cfg.Renderer.Backend {
	case config.RendererStatic:
		a.logger.Info("using static renderer", zap.String("user_agent", cfg.Crawler.UserAgent))
		return static()
	case config.RendererHybrid:
		a.logger.Info("using hybrid renderer", zap.Duration("nav_timeout", cfg.Renderer.NavTimeout()))
		return renderer.NewHybrid(static(), browser(), renderer.NewDetector(0), a.logger.Named("renderer"))
	default:
		a.logger.Info("using headless browser renderer", zap.Duration("nav_timeout", cfg.Renderer.NavTimeout()))
		return browser()
	}
}

func (a *App) setupArchive(ctx context.Context) (search.BlobStore, error) {
	cfg := a.cfg.Archive
	switch cfg.Backend {
	case config.ArchiveGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using GCS archive", zap.String("bucket", cfg.Bucket))
		return store, nil
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("using local archive", zap.String("dir", cfg.Dir))
		return store, nil
	case config.ArchiveMemory:
		a.logger.Info("using in-memory archive")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("page archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (search.Publisher, error) {
	cfg := a.cfg.Events
	switch {
	case cfg.Topic == "":
		a.logger.Info("no event topic configured, document events disabled")
		return nil, nil
	case cfg.ProjectID == "":
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher", zap.String("topic", cfg.Topic))
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", cfg.ProjectID),
		zap.String("topic", cfg.Topic),
	)
	return pub, nil
}

// Handler exposes the query API router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Migrate applies the database schema. The in-memory store needs none.
func (a *App) Migrate(ctx context.Context) error {
	if a.pg == nil {
		a.logger.Info("in-memory store, nothing to migrate")
		return nil
	}
	if err := a.pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("schema applied")
	return nil
}

// Seed fills an empty frontier from the configured seed file.
func (a *App) Seed(ctx context.Context) (int64, error) {
	n, err := a.seeder.EnsureFile(ctx, a.cfg.Crawler.SeedFile)
	if err != nil {
		return 0, fmt.Errorf("seed frontier: %w", err)
	}
	return n, nil
}

// RunCrawler starts the renderer and drives the frontier until ctx is done.
// With once set, it crawls a single batch and returns.
func (a *App) RunCrawler(ctx context.Context, once bool) error {
	if svc, ok := a.renderer.(renderService); ok {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start renderer: %w", err)
		}
		defer func() {
			if err := svc.Close(); err != nil {
				a.logger.Warn("renderer close failed", zap.Error(err))
			}
		}()
	}
	if once {
		report, err := a.scheduler.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("crawl batch: %w", err)
		}
		a.logger.Info("batch complete", zap.String("mode", string(report.Mode)), zap.Int("origins", len(report.Results)))
		return nil
	}
	if err := a.scheduler.Run(ctx); err != nil {
		return fmt.Errorf("run scheduler: %w", err)
	}
	return nil
}

// RunAPI serves the query API until ctx is done, then shuts down gracefully.
func (a *App) RunAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grace := a.cfg.Crawler.ShutdownGrace()
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	return serveHTTP(ctx, srv, grace, a.logger)
}

// serveHTTP runs srv until ctx is done and gives in-flight requests grace to finish.
func serveHTTP(ctx context.Context, srv *http.Server, grace time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("http server shutting down", zap.Duration("grace", grace))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// RunAll seeds an empty frontier, then runs the crawler and the API together.
// The first one to fail stops the other.
func (a *App) RunAll(ctx context.Context) error {
	if _, err := a.Seed(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.RunAPI(gctx) })
	g.Go(func() error { return a.RunCrawler(gctx, false) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// Close releases every owned client. It is safe to call once after Run returns.
func (a *App) Close() error {
	err := a.abort(nil)
	a.logger.Info("shutdown complete")
	if serr := a.logger.Sync(); serr != nil {
		a.logger.Debug("logger sync failed", zap.Error(serr))
	}
	return err
}
