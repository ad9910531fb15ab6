package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/handlers"
	"github.com/ternarybob/newswire/internal/interfaces"
	"github.com/ternarybob/newswire/internal/models"
	"github.com/ternarybob/newswire/internal/queue"
	"github.com/ternarybob/newswire/internal/semaphore"
	badgerstore "github.com/ternarybob/newswire/internal/storage/badger"
	"github.com/ternarybob/newswire/internal/storage/objectstore"

	"github.com/ternarybob/newswire/internal/services/enrich"
	"github.com/ternarybob/newswire/internal/services/extract"
	"github.com/ternarybob/newswire/internal/services/images"
	"github.com/ternarybob/newswire/internal/services/ingest"
	"github.com/ternarybob/newswire/internal/services/llm"
	"github.com/ternarybob/newswire/internal/services/rewrite"
	"github.com/ternarybob/newswire/internal/services/scheduler"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	RedisClient    *redis.Client
	QueueManager   interfaces.QueueManager
	ObjectStore    *objectstore.FilesystemStore

	Semaphores map[string]interfaces.Semaphore

	SourceRegistry *ingest.Registry
	EngineRegistry *extract.Registry
	Processor      *ingest.Processor
	ChatChain      *llm.Chain
	EnrichWorker   *enrich.Worker
	RewriteWorker  *rewrite.Worker
	ImageResolver  *images.Resolver
	ImageWorker    *images.Worker
	Scheduler      *scheduler.Scheduler

	consumers []*queue.Consumer

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	RunHandler       *handlers.RunHandler
	FeedHandler      *handlers.FeedHandler
	ContentHandler   *handlers.ContentHandler
	QueueHandler     *handlers.QueueHandler
	SemaphoreHandler *handlers.SemaphoreHandler
	ImageHandler     *handlers.ImageHandler
	SourcesHandler   *handlers.SourcesHandler
}

// Semaphore names used for keys, stats and the admin reset route.
const (
	SemEnrich  = "enrich"
	SemRewrite = "rewrite"
	SemImage   = "image"
)

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:     cfg,
		Logger:     logger,
		Semaphores: make(map[string]interfaces.Semaphore),
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initRedis(); err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	if err := app.initQueue(); err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	logger.Info().
		Int("sources", len(app.SourceRegistry.Definitions())).
		Str("badger", cfg.Storage.Badger.Path).
		Str("redis", cfg.Redis.Address).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager

	baseURL := a.Config.Server.BaseURL
	store, err := objectstore.NewFilesystemStore(a.Config.Storage.Media.Path, baseURL+"/media", a.Logger)
	if err != nil {
		return err
	}
	a.ObjectStore = store

	a.Logger.Debug().
		Str("badger", a.Config.Storage.Badger.Path).
		Str("media", a.Config.Storage.Media.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initRedis() error {
	client, err := semaphore.NewClient(a.Config.Redis)
	if err != nil {
		return err
	}
	a.RedisClient = client

	slotCaps := map[string]int64{
		SemEnrich:  int64(a.Config.Semaphore.EnrichSlots),
		SemRewrite: int64(a.Config.Semaphore.RewriteSlots),
		SemImage:   int64(a.Config.Semaphore.ImageSlots),
	}
	for name, max := range slotCaps {
		sem, err := semaphore.New(client, semaphore.Config{
			Name:           name,
			Max:            max,
			AcquireTimeout: common.MustDuration(a.Config.Semaphore.AcquireTimeout),
			PollInterval:   common.MustDuration(a.Config.Semaphore.PollInterval),
			HolderTTL:      common.MustDuration(a.Config.Semaphore.HolderTTL),
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Semaphores[name] = sem
	}
	return nil
}

func (a *App) initQueue() error {
	db, ok := a.StorageManager.DB().(*badger.DB)
	if !ok {
		return fmt.Errorf("storage manager does not expose a badger handle")
	}

	q, err := queue.NewBadgerQueue(db, queue.Options{
		VisibilityTimeout: common.MustDuration(a.Config.Queue.VisibilityTimeout),
		MaxReceive:        a.Config.Queue.MaxReceive,
		BackoffBase:       common.MustDuration(a.Config.Queue.BackoffBase),
	}, a.Logger)
	if err != nil {
		return err
	}
	a.QueueManager = q
	return nil
}

func (a *App) initServices() error {
	registry, err := ingest.NewRegistryFromFile(a.Config.Sources.Path)
	if err != nil {
		return fmt.Errorf("failed to load source definitions: %w", err)
	}
	a.SourceRegistry = registry

	a.EngineRegistry = extract.NewRegistry(a.Config.Crawler, a.Config.Firecrawl)

	content := a.StorageManager.ContentStorage()
	runs := a.StorageManager.RunStorage()

	a.Processor = ingest.NewProcessor(registry, a.EngineRegistry, content, runs, a.QueueManager)

	chain, err := llm.NewChainFromConfig(a.Config)
	if err != nil {
		return fmt.Errorf("failed to build provider chain: %w", err)
	}
	a.ChatChain = chain

	fetcher := extract.NewFetcher(a.Config.Crawler)

	var renderer enrich.PageRenderer
	if a.Config.Crawler.EnableJavaScript {
		renderer = a.EngineRegistry.Browser()
	}
	a.EnrichWorker = enrich.NewWorker(content, a.QueueManager, a.Semaphores[SemEnrich], fetcher, renderer)

	a.RewriteWorker = rewrite.NewWorker(content, a.QueueManager, a.Semaphores[SemRewrite], chain, a.Config.Rewrite.PromptVersion)

	a.ImageResolver = a.buildImageResolver(fetcher, chain)
	a.ImageWorker = images.NewWorker(content, a.Semaphores[SemImage], a.ImageResolver)

	a.Scheduler = scheduler.New(a.Processor, runs)
	if err := a.Scheduler.Register(registry.Definitions()); err != nil {
		return fmt.Errorf("failed to register source schedules: %w", err)
	}

	return nil
}

func (a *App) buildImageResolver(downloader images.Downloader, chain *llm.Chain) *images.Resolver {
	imgCfg := a.Config.Images

	var searchers []interfaces.ImageSearchProvider
	searchers = append(searchers, images.NewSerpProvider(imgCfg))
	searchers = append(searchers, images.NewStockProvider(imgCfg))

	cache := images.NewRedisSearchCache(a.RedisClient, common.DurationOr(imgCfg.CacheTTL, 720*time.Hour))
	policy := images.NewPolicy(chain)
	generator := images.NewGenerator(a.Config.Gemini, imgCfg.GenerateEnabled)
	validator := images.NewValidator(a.Config.Crawler, imgCfg.MinBytes)

	return images.NewResolver(validator, downloader, searchers, cache, policy, generator, a.ObjectStore, imgCfg.MinWidth)
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.RunHandler = handlers.NewRunHandler(a.Processor, a.StorageManager.RunStorage())
	a.FeedHandler = handlers.NewFeedHandler(a.StorageManager.ContentStorage())
	a.ContentHandler = handlers.NewContentHandler(a.StorageManager.ContentStorage(), a.QueueManager)
	a.QueueHandler = handlers.NewQueueHandler(a.QueueManager)
	a.SemaphoreHandler = handlers.NewSemaphoreHandler(a.Semaphores)
	a.ImageHandler = handlers.NewImageHandler(a.ImageResolver)
	a.SourcesHandler = handlers.NewSourcesHandler(a.SourceRegistry)
}

// StartWorkers launches the stage consumers and the scheduler.
func (a *App) StartWorkers(ctx context.Context) {
	pollInterval := common.MustDuration(a.Config.Queue.PollInterval)
	concurrency := a.Config.Queue.Concurrency

	stageHandlers := []struct {
		stage   models.Stage
		handler queue.Handler
	}{
		{models.StageIngest, a.Processor.HandleMessage},
		{models.StageEnrich, a.EnrichWorker.HandleMessage},
		{models.StageRewrite, a.RewriteWorker.HandleMessage},
		{models.StageImage, a.ImageWorker.HandleMessage},
	}

	for _, sh := range stageHandlers {
		consumer := queue.NewConsumer(a.QueueManager, sh.stage, sh.handler, concurrency, pollInterval, a.Logger)
		consumer.Start(ctx)
		a.consumers = append(a.consumers, consumer)
	}

	a.Scheduler.Start()
	a.Logger.Info().Int("stages", len(stageHandlers)).Int("concurrency", concurrency).Msg("Workers started")
}

// Shutdown stops workers and closes resources in dependency order:
// scheduler first so no new runs start, consumers next so in-flight
// jobs drain, storage last.
func (a *App) Shutdown() {
	a.Logger.Info().Msg("Shutting down application...")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	for _, consumer := range a.consumers {
		consumer.Stop()
	}

	if a.EngineRegistry != nil {
		a.EngineRegistry.Close()
	}
	if a.ChatChain != nil {
		a.ChatChain.Close()
	}
	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Queue close failed")
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Redis close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
}
