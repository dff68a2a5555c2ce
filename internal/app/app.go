// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/catalog"
	"github.com/JakeFAU/docwatch/internal/config"
	"github.com/JakeFAU/docwatch/internal/crawllog"
	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/enrich"
	notifypubsub "github.com/JakeFAU/docwatch/internal/notify/pubsub"
	"github.com/JakeFAU/docwatch/internal/pipeline"
	"github.com/JakeFAU/docwatch/internal/publish"
	"github.com/JakeFAU/docwatch/internal/ratelimit"
	recgcs "github.com/JakeFAU/docwatch/internal/recordstore/gcs"
	reclocal "github.com/JakeFAU/docwatch/internal/recordstore/local"
	recmemory "github.com/JakeFAU/docwatch/internal/recordstore/memory"
	recpostgres "github.com/JakeFAU/docwatch/internal/recordstore/postgres"
	recredis "github.com/JakeFAU/docwatch/internal/recordstore/redis"
	shardgcs "github.com/JakeFAU/docwatch/internal/storage/gcs"
	shardlocal "github.com/JakeFAU/docwatch/internal/storage/local"
	"github.com/JakeFAU/docwatch/internal/store"
	"github.com/JakeFAU/docwatch/internal/wayback"
)

// App holds the shared, long-lived services for one process. It is built
// once at startup and handed to the command or server that needs it.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	shards       docs.ShardStore
	records      docs.RecordStore
	runs         store.RunRepository
	poller       *wayback.Poller
	orchestrator *pipeline.Orchestrator
	closers      []func() error
	ready        []func(context.Context) error
}

// Option customizes New.
type Option func(*options)

type options struct {
	gcsClient *storage.Client
}

// WithGCSClient reuses an existing client for every GCS backend instead of
// dialing one with Application Default Credentials.
func WithGCSClient(c *storage.Client) Option {
	return func(o *options) {
		o.gcsClient = c
	}
}

// New creates the App from configuration. It fails fast if any configured
// backend cannot be initialized, closing what was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	l := logger.Named("app")
	l.Info("initializing application services")

	gcsClient := func(bucket string) (*storage.Client, error) {
		if o.gcsClient != nil {
			return o.gcsClient, nil
		}
		c, err := shardgcs.Connect(ctx, bucket, l)
		if err != nil {
			return nil, err
		}
		o.gcsClient = c
		a.closers = append(a.closers, c.Close)
		return c, nil
	}

	// 1. Shard storage holding the crawl logs.
	switch cfg.Storage.Backend {
	case "gcs":
		l.Info("using GCS shard storage", zap.String("bucket", cfg.Storage.GCSBucket))
		c, err := gcsClient(cfg.Storage.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize shard storage: %w", err)
		}
		if a.shards, err = shardgcs.New(c, shardgcs.Config{Bucket: cfg.Storage.GCSBucket}); err != nil {
			return nil, fmt.Errorf("failed to initialize shard storage: %w", err)
		}
	case "local":
		l.Info("using local shard storage", zap.String("base_dir", cfg.Storage.BaseDir))
		if a.shards, err = shardlocal.New(shardlocal.Config{BaseDir: cfg.Storage.BaseDir}); err != nil {
			return nil, fmt.Errorf("failed to initialize shard storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	// 2. PublishRecord store, the source of truth for "already published".
	if err := a.initRecords(ctx, l, gcsClient); err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	// 3. External services behind a shared per-host limiter.
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.RateLimit.RPS,
		Burst: cfg.RateLimit.Burst,
		Hosts: cfg.RateLimit.HostRates(),
	})
	httpClient := &http.Client{Timeout: cfg.CatalogTimeout()}

	var feed docs.TargetFeed
	switch {
	case cfg.Feed.URL != "":
		feed = catalog.NewHTTPFeed(cfg.Feed.URL, catalog.Credentials{User: cfg.Feed.User, Password: cfg.Feed.Password}, httpClient, limiter)
	case cfg.Feed.File != "":
		feed = catalog.NewFileFeed(cfg.Feed.File)
	default:
		l.Warn("no target feed configured; scans will fail")
	}

	var submitter docs.Catalog = catalog.Disabled{}
	if cfg.Catalog.SubmitURL != "" {
		submitter = catalog.NewSubmitter(cfg.Catalog.SubmitURL, catalog.Credentials{User: cfg.Catalog.User, Password: cfg.Catalog.Password}, httpClient, limiter)
	} else {
		l.Warn("no catalog submit url configured; accepted documents will fail to publish")
	}

	var resolver docs.AvailabilityResolver
	if cfg.Wayback.Prefix != "" {
		a.poller, err = wayback.New(wayback.Config{
			Prefix:         cfg.Wayback.Prefix,
			CheckAvailable: cfg.Wayback.CheckAvailable,
			PageSize:       cfg.Wayback.PageSize,
			MaxPages:       cfg.Wayback.MaxPages,
			UserAgent:      cfg.Wayback.UserAgent,
			Timeout:        cfg.WaybackTimeout(),
		}, limiter, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize wayback poller: %w", err)
		}
		resolver = a.poller
	}

	// 4. Outcome notifications.
	pubOpts := []publish.Option{publish.WithLogger(logger)}
	if cfg.PubSub.Enabled() {
		l.Info("connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		n, err := notifypubsub.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notifications: %w", err)
		}
		a.closers = append(a.closers, n.Close)
		a.ready = append(a.ready, func(ctx context.Context) error { return n.CheckTopic(ctx, "") })
		pubOpts = append(pubOpts, publish.WithNotifier(n, cfg.PubSub.TopicName))
	}

	// 5. The pipeline itself.
	policy, err := enrich.NewScopePolicy(cfg.Pipeline.RejectPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enrichment policy: %w", err)
	}
	a.orchestrator = pipeline.New(pipeline.Deps{
		Feed:      feed,
		Shards:    a.shards,
		Scanner:   crawllog.NewScanner(a.shards, crawllog.Config{Root: cfg.Storage.Root, MediaType: cfg.Storage.MediaType}, logger.Named("crawllog")),
		Resolver:  resolver,
		Enricher:  enrich.NewGate(policy, logger),
		Publisher: publish.New(a.records, submitter, pubOpts...),
	}, pipeline.Config{
		Workers:             cfg.Pipeline.Workers,
		QueueSize:           cfg.Pipeline.QueueSize,
		RequireAvailability: cfg.Pipeline.RequireAvailability,
		LaunchConcurrency:   cfg.Pipeline.LaunchConcurrency,
	}, logger)

	// 6. Run history for the HTTP surface.
	if err := a.initRuns(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}

	l.Info("application services initialized")
	return a, nil
}

func (a *App) initRecords(ctx context.Context, l *zap.Logger, gcsClient func(string) (*storage.Client, error)) error {
	rc := a.cfg.Records
	switch rc.Backend {
	case "memory":
		l.Info("using in-memory record store; records are lost on exit")
		a.records = recmemory.New()
	case "local":
		l.Info("using local record store", zap.String("base_dir", rc.BaseDir))
		s, err := reclocal.New(reclocal.Config{BaseDir: rc.BaseDir})
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.records = s
	case "postgres":
		l.Info("connecting to PostgreSQL record store", zap.String("table", rc.Table))
		s, err := recpostgres.New(ctx, recpostgres.Config{DSN: rc.DSN, Table: rc.Table, MaxConns: rc.MaxConns})
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		if err := s.EnsureSchema(ctx); err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.records = s
	case "redis":
		l.Info("connecting to Redis record store", zap.String("addr", rc.RedisAddr))
		s, err := recredis.New(ctx, recredis.Config{Addr: rc.RedisAddr, Password: rc.RedisPassword, DB: rc.RedisDB, KeyPrefix: rc.KeyPrefix})
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.closers = append(a.closers, s.Close)
		a.records = s
	case "gcs":
		l.Info("using GCS record store", zap.String("bucket", rc.GCSBucket))
		c, err := gcsClient(rc.GCSBucket)
		if err != nil {
			return err
		}
		s, err := recgcs.New(c, recgcs.Config{Bucket: rc.GCSBucket, Prefix: rc.GCSPrefix})
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.records = s
	default:
		return fmt.Errorf("unknown records backend: %s", rc.Backend)
	}
	return nil
}

func (a *App) initRuns(ctx context.Context, l *zap.Logger) error {
	sc := a.cfg.Server
	switch sc.RunsBackend {
	case "", "memory":
		a.runs = store.NewMemoryRuns(sc.MaxRuns)
	case "postgres":
		l.Info("connecting to PostgreSQL run history", zap.String("table", sc.RunsTable))
		r, err := store.NewPostgresRuns(ctx, a.cfg.RunsDSN(), sc.RunsTable)
		if err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.closers = append(a.closers, func() error { r.Close(); return nil })
		if err := r.EnsureSchema(ctx); err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
		a.runs = r
	default:
		return fmt.Errorf("unknown runs backend: %s", sc.RunsBackend)
	}
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Orchestrator returns the launch pipeline.
func (a *App) Orchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// Poller returns the wayback poller, or nil when no wayback prefix is set.
func (a *App) Poller() *wayback.Poller {
	return a.poller
}

// Records exposes the PublishRecord store.
func (a *App) Records() docs.RecordStore {
	return a.records
}

// Runs exposes the run history repository.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Ready checks the dependencies that can be probed cheaply.
func (a *App) Ready(ctx context.Context) error {
	for _, check := range a.ready {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down every service in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing application service", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on stderr in many environments; best effort only.
	_ = a.logger.Sync()
}
