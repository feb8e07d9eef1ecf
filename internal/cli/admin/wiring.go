package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloo-solutions/botstudio/internal/config"
	"github.com/cloo-solutions/botstudio/internal/crawler"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/metrics"
	"github.com/cloo-solutions/botstudio/internal/openai"
	"github.com/cloo-solutions/botstudio/internal/queue"
	"github.com/cloo-solutions/botstudio/internal/ratelimit"
	"github.com/cloo-solutions/botstudio/internal/realtime"
	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/cloo-solutions/botstudio/internal/session"
	"github.com/cloo-solutions/botstudio/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var errQueueDisabled = errors.New("task queue is not configured (set BOTSTUDIO_REDIS_ADDR)")

// app holds the services shared by the serve and worker commands.
type app struct {
	cfg *config.Config
	log logrus.FieldLogger

	metrics *metrics.Metrics
	hub     *realtime.Hub
	redis   *redis.Client
	bus     *realtime.RedisBus
	queue   *queue.Client
	llm     *openai.Client
	limiter *ratelimit.KeyedLimiter

	apiKeys   *repository.APIKeyRepository
	indexJobs *repository.IndexJobRepository

	workspaces    *service.WorkspaceService
	auth          *service.AuthService
	billing       *service.BillingService
	notifications *service.NotificationService
	bots          *service.BotService
	widgets       *service.WidgetService
	knowledge     *service.KnowledgeService
	indexing      *service.IndexingService
	catalog       *service.CatalogService
	generation    *service.GenerationService
	chat          *service.ChatService
}

func newApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, pool *pgxpool.Pool) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		limiter: ratelimit.New(cfg.PublicChatRPS, cfg.PublicChatBurst),
	}
	a.hub = realtime.NewHub(log).WithObserver(a.metrics)

	uuidGen := &service.DefaultUUIDGenerator{}
	tx := repository.NewTxRunner(pool)

	workspaceRepo := repository.NewWorkspaceRepository(pool)
	memberRepo := repository.NewMemberRepository(pool)
	a.apiKeys = repository.NewAPIKeyRepository(pool)
	planRepo := repository.NewPlanRepository(pool)
	subRepo := repository.NewSubscriptionRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	botRepo := repository.NewBotRepository(pool)
	widgetRepo := repository.NewWidgetRepository(pool)
	kbRepo := repository.NewKnowledgeBaseRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	crawlRepo := repository.NewCrawlJobRepository(pool)
	a.indexJobs = repository.NewIndexJobRepository(pool)
	toolRepo := repository.NewToolRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)
	generationRepo := repository.NewGenerationJobRepository(pool)

	var publisher service.Publisher = realtime.NewLocalBus(a.hub)
	if cfg.HasRedis() {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		a.bus = realtime.NewRedisBus(a.redis, realtime.DefaultChannel, log)
		publisher = a.bus
		a.queue = queue.NewClient(queue.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	}

	a.workspaces = service.NewWorkspaceService(workspaceRepo, memberRepo, tx, uuidGen)
	a.auth = service.NewAuthService(a.apiKeys, memberRepo, uuidGen, log)
	a.notifications = service.NewNotificationService(notificationRepo, publisher, uuidGen, log)
	a.billing = service.NewBillingService(planRepo, subRepo, usageRepo, memberRepo, a.notifications, log)
	a.billing.RegisterCounter(domain.MetricBots, botRepo.Count)
	a.billing.RegisterCounter(domain.MetricKnowledgeDocuments, docRepo.CountByWorkspace)

	a.bots = service.NewBotService(botRepo, kbRepo, a.billing, uuidGen)
	a.widgets = service.NewWidgetService(widgetRepo, botRepo, tx, uuidGen)
	a.catalog = service.NewCatalogService(toolRepo, templateRepo, uuidGen, log)
	a.knowledge = service.NewKnowledgeService(kbRepo, docRepo, chunkRepo, crawlRepo, tx, a.billing, a.notifications, uuidGen, log)

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.WithField("bucket", cfg.S3Bucket).Info("document storage ready")
		a.knowledge.WithStorage(&objectStore{client: s3Client})
	}

	if a.queue != nil {
		siteCrawler := crawler.New(&http.Client{Timeout: 20 * time.Second}, log, crawler.WithUserAgent("botstudio-crawler/1.0"))
		a.knowledge.WithCrawling(a.queue, siteCrawler)
	}

	var model service.LanguageModel
	if cfg.HasOpenAI() {
		a.llm = openai.NewClientWithConfig(openai.Config{APIKey: cfg.OpenAIAPIKey, ChatModel: cfg.OpenAIChatModel})
		a.knowledge.WithEmbedder(a.llm)
		a.indexing = service.NewIndexingService(a.llm, docRepo, tx)
		model = a.llm
	}

	var generationQueue service.GenerationQueue = disabledQueue{}
	if a.queue != nil {
		generationQueue = a.queue
	}
	a.generation = service.NewGenerationService(
		generationRepo, templateRepo, a.catalog, a.billing, generationQueue,
		a.notifications, tx, uuidGen, cfg.OpenAIChatModel, log,
	).WithObserver(a.metrics)
	if model != nil {
		a.generation.WithModel(model)
	}

	var sessions service.SessionIssuer
	if cfg.HasWidgetSessions() {
		sessions = session.NewIssuer(cfg.WidgetSessionSecret, cfg.WidgetSessionTTL)
	}
	a.chat = service.NewChatService(botRepo, widgetRepo, sessions, a.limiter, a.billing, a.knowledge, model, log)

	return a, nil
}

func (a *app) Close() {
	a.hub.Close()
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close queue client")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close redis client")
		}
	}
}

// objectStore adapts the S3 client to the knowledge service.
type objectStore struct {
	client *storage.S3Client
}

func (o *objectStore) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return o.client.GenerateUploadURL(ctx, key, contentType)
}

func (o *objectStore) GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	return o.client.GetObject(ctx, key, maxBytes)
}

func (o *objectStore) DeleteObject(ctx context.Context, key string) error {
	return o.client.DeleteObject(ctx, key)
}

func (o *objectStore) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := o.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}

// disabledQueue leaves generation jobs pending when no broker is configured.
type disabledQueue struct{}

func (disabledQueue) EnqueueGeneration(context.Context, string) (string, error) {
	return "", errQueueDisabled
}

func (disabledQueue) CancelGeneration(context.Context, string) error {
	return nil
}
