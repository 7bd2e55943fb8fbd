// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/api"
	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/config"
	"github.com/JakeFAU/article-archiver/internal/navigator/headless"
	"github.com/JakeFAU/article-archiver/internal/navigator/static"
	"github.com/JakeFAU/article-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/article-archiver/internal/storage/gcs"
	"github.com/JakeFAU/article-archiver/internal/storage/local"
	"github.com/JakeFAU/article-archiver/internal/storage/memory"
	"github.com/JakeFAU/article-archiver/internal/storage/mongo"
	"github.com/JakeFAU/article-archiver/internal/storage/postgres"
	"github.com/JakeFAU/article-archiver/internal/storage/sqlite"
	"github.com/JakeFAU/article-archiver/internal/telemetry"
	"github.com/JakeFAU/article-archiver/internal/transfer"
)

// App holds the shared, long-lived services built from a Config. It is
// initialized once per command and closed when the command finishes.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	contents   archive.ContentStore
	records    archive.RecordStore
	publisher  archive.Publisher
	downloader *transfer.Downloader
	navigators archive.NavigatorFactory

	mongo   *mongo.Client
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option customizes App construction.
type Option func(*App)

// WithPublisher replaces the configured Pub/Sub publisher.
func WithPublisher(p archive.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithNavigatorFactory replaces the configured navigator driver.
func WithNavigatorFactory(f archive.NavigatorFactory) Option {
	return func(a *App) { a.navigators = f }
}

// New builds every service cfg asks for and fails fast on the first error,
// releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	logger.Info("initializing application services",
		zap.String("navigator", cfg.Navigator.Driver),
		zap.String("content_backend", cfg.Storage.Content),
		zap.String("record_backend", cfg.Storage.Records),
	)

	steps := []func(context.Context) error{
		a.initTelemetry,
		a.initContents,
		a.initRecords,
		a.initPublisher,
		a.initNavigators,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("cleanup after failed initialization", zap.Error(cerr))
			}
			return nil, err
		}
	}
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	provider, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.onClose("telemetry", provider.Shutdown)
	return nil
}

func (a *App) initContents(ctx context.Context) error {
	switch a.cfg.Storage.Content {
	case config.BackendMemory:
		a.contents = memory.NewContentStore()
	case config.BackendLocal:
		store, err := local.New(a.cfg.Storage.Local)
		if err != nil {
			return fmt.Errorf("init local content store: %w", err)
		}
		a.contents = store
	case config.BackendGCS:
		store, err := gcs.Connect(ctx, a.cfg.Storage.GCS, a.logger)
		if err != nil {
			return fmt.Errorf("init gcs content store: %w", err)
		}
		a.contents = store
		a.onClose("gcs", func(context.Context) error { return store.Close() })
	case config.BackendMongo:
		client, err := a.mongoClient(ctx)
		if err != nil {
			return err
		}
		store, err := client.ContentStore()
		if err != nil {
			return fmt.Errorf("init gridfs content store: %w", err)
		}
		a.contents = store
	default:
		return fmt.Errorf("unknown content backend %q", a.cfg.Storage.Content)
	}
	return nil
}

func (a *App) initRecords(ctx context.Context) error {
	switch a.cfg.Storage.Records {
	case config.BackendMemory:
		a.records = memory.NewRecordStore()
	case config.BackendSQLite:
		store, err := sqlite.NewRecordStore(a.cfg.Storage.SQLite)
		if err != nil {
			return fmt.Errorf("init sqlite record store: %w", err)
		}
		a.records = store
		a.onClose("sqlite", func(context.Context) error { return store.Close() })
	case config.BackendPostgres:
		store, err := postgres.NewRecordStore(ctx, a.cfg.Storage.Postgres)
		if err != nil {
			return fmt.Errorf("init postgres record store: %w", err)
		}
		a.onClose("postgres", func(context.Context) error {
			store.Close()
			return nil
		})
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init postgres schema: %w", err)
		}
		a.records = store
	case config.BackendMongo:
		client, err := a.mongoClient(ctx)
		if err != nil {
			return err
		}
		a.records = client.RecordStore()
	default:
		return fmt.Errorf("unknown record backend %q", a.cfg.Storage.Records)
	}
	return nil
}

// mongoClient connects once and shares the client between both stores.
func (a *App) mongoClient(ctx context.Context) (*mongo.Client, error) {
	if a.mongo != nil {
		return a.mongo, nil
	}
	client, err := mongo.Connect(ctx, a.cfg.Storage.Mongo)
	if err != nil {
		return nil, fmt.Errorf("init mongo: %w", err)
	}
	a.mongo = client
	a.onClose("mongo", client.Close)
	return client, nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil || !a.cfg.PubSub.Enabled() {
		return nil
	}
	pub, err := pubsub.Connect(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic, a.logger)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.publisher = pub
	a.onClose("pubsub", func(context.Context) error { return pub.Close() })
	return nil
}

func (a *App) initNavigators(context.Context) error {
	a.downloader = transfer.New(transfer.Config{
		UserAgent:   a.cfg.Transfer.UserAgent,
		Timeout:     a.cfg.Transfer.Timeout,
		MaxBodySize: a.cfg.Transfer.MaxBodySize,
		RateLimit:   a.cfg.Transfer.RateLimit,
	})
	if a.navigators != nil {
		return nil
	}
	switch a.cfg.Navigator.Driver {
	case config.DriverStatic:
		a.navigators = static.Factory(a.downloader)
	case config.DriverHeadless:
		alloc := headless.NewAllocator(headless.Config{
			Headful:           a.cfg.Navigator.Headful,
			ExecPath:          a.cfg.Navigator.ExecPath,
			UserAgent:         a.cfg.Navigator.UserAgent,
			NavigationTimeout: a.cfg.Navigator.NavigationTimeout,
		}, a.logger.Named("navigator"))
		a.navigators = alloc.Factory()
		a.onClose("browser", func(context.Context) error {
			alloc.Close()
			return nil
		})
	default:
		return fmt.Errorf("unknown navigator driver %q", a.cfg.Navigator.Driver)
	}
	return nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Pipeline opens the primary navigator session and assembles a Pipeline
// around it. The pipeline closes that session when its Run returns.
func (a *App) Pipeline(ctx context.Context) (*archive.Pipeline, error) {
	nav, err := a.navigators(ctx)
	if err != nil {
		return nil, fmt.Errorf("open navigator: %w", err)
	}
	crawler := archive.NewResultSetCrawler(nav, archive.CrawlerConfig{
		ResultSelector: a.cfg.Crawl.ResultSelector,
		LinkAttribute:  a.cfg.Crawl.LinkAttribute,
		PageTimeout:    a.cfg.Crawl.PageTimeout,
		MaxPages:       a.cfg.Crawl.MaxPages,
	}, a.logger.Named("crawler"))
	fetcher := archive.NewArticleFetcher(nav, a.downloader, archive.FetcherConfig{
		DownloadSelector: a.cfg.Fetch.DownloadSelector,
		TargetAttribute:  a.cfg.Fetch.TargetAttribute,
		WaitTimeout:      a.cfg.Fetch.WaitTimeout,
	}, a.logger.Named("fetcher"))

	var topic string
	if a.publisher != nil {
		topic = a.cfg.PubSub.Topic
	}
	pipeline, err := archive.NewPipeline(archive.PipelineDeps{
		Navigator:        nav,
		Crawler:          crawler,
		Fetcher:          fetcher,
		Contents:         a.contents,
		Records:          a.records,
		Publisher:        a.publisher,
		NavigatorFactory: a.navigators,
	}, archive.PipelineConfig{
		Workers: a.cfg.Pipeline.Workers,
		Topic:   topic,
	}, a.logger.Named("pipeline"))
	if err != nil {
		if cerr := nav.Close(); cerr != nil {
			a.logger.Warn("failed to close navigator", zap.Error(cerr))
		}
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return pipeline, nil
}

// Run executes one archive run over the configured search endpoint.
func (a *App) Run(ctx context.Context) (archive.RunSummary, error) {
	pipeline, err := a.Pipeline(ctx)
	if err != nil {
		return archive.RunSummary{}, err
	}
	return pipeline.Run(ctx, a.cfg.Crawl.BaseURL, a.cfg.Crawl.StartPage)
}

// Retriever returns an ArtifactRetriever over the configured content store.
func (a *App) Retriever() *archive.Retriever {
	return archive.NewRetriever(a.contents, nil, a.logger.Named("retriever"))
}

// APIServer returns the HTTP API over the configured stores.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.contents, a.records, api.Options{
		APIKey:            a.cfg.Server.APIKey,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   a.cfg.Server.ShutdownTimeout,
	}, a.logger.Named("api"))
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Contents returns the configured content store.
func (a *App) Contents() archive.ContentStore { return a.contents }

// Records returns the configured record store.
func (a *App) Records() archive.RecordStore { return a.records }

// Close releases services in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
