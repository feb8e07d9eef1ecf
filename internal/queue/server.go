package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// GenerationRunner executes one attempt of a generation job.
type GenerationRunner interface {
	Run(ctx context.Context, jobID string, finalAttempt bool) error
}

// CrawlRunner executes a crawl job.
type CrawlRunner interface {
	RunCrawl(ctx context.Context, crawlJobID string) error
}

// Handlers maps task types to services.
type Handlers struct {
	Generation GenerationRunner
	Crawl      CrawlRunner
	Log        logrus.FieldLogger
}

// NewServeMux registers a handler for every task type that has a runner.
func NewServeMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(traceTasks)
	if h.Generation != nil {
		mux.HandleFunc(TypeGenerationRun, h.handleGeneration)
	}
	if h.Crawl != nil {
		mux.HandleFunc(TypeKnowledgeCrawl, h.handleCrawl)
	}
	return mux
}

func (h Handlers) handleGeneration(ctx context.Context, t *asynq.Task) error {
	p, err := parseGenerationPayload(t)
	if err != nil {
		return err
	}
	return skipPermanent(h.Generation.Run(ctx, p.JobID, isFinalAttempt(ctx)))
}

func (h Handlers) handleCrawl(ctx context.Context, t *asynq.Task) error {
	p, err := parseCrawlPayload(t)
	if err != nil {
		return err
	}
	return skipPermanent(h.Crawl.RunCrawl(ctx, p.CrawlJobID))
}

// traceTasks runs every task inside its own Sentry transaction.
func traceTasks(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		ctx, span := telemetry.StartTask(ctx, t.Type(), taskID)
		defer span.End()
		return next.ProcessTask(ctx, t)
	})
}

func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// skipPermanent stops asynq from retrying errors that cannot succeed later.
func skipPermanent(err error) error {
	if err == nil {
		return nil
	}
	switch domain.CodeOf(err) {
	case domain.ErrCodeNotFound, domain.ErrCodeValidation, domain.ErrCodeInvalidOperation:
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// ServerConfig tunes the worker process.
type ServerConfig struct {
	Redis       RedisConfig
	Concurrency int
}

// NewServer builds an asynq server consuming the generation and knowledge queues.
func NewServer(cfg ServerConfig, log logrus.FieldLogger) *asynq.Server {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	log = log.WithField("component", "queue")
	return asynq.NewServer(cfg.Redis.clientOpt(), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueGeneration: 6,
			QueueKnowledge:  3,
		},
		Logger: log,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			taskID, _ := asynq.GetTaskID(ctx)
			entry := log.WithError(err).WithFields(logrus.Fields{"task_id": taskID, "type": task.Type()})
			if errors.Is(err, asynq.SkipRetry) {
				entry.Warn("task dropped")
				return
			}
			entry.Error("task failed")
		}),
	})
}
