package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// RedisConfig locates the Redis instance backing the queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) clientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.Addr, Password: c.Password, DB: c.DB}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type inspector interface {
	DeleteTask(queue, id string) error
}

// Client enqueues tasks and removes queued ones.
type Client struct {
	client    enqueuer
	inspector inspector
	closers   []func() error
}

func NewClient(cfg RedisConfig) *Client {
	c := asynq.NewClient(cfg.clientOpt())
	i := asynq.NewInspector(cfg.clientOpt())
	return &Client{
		client:    c,
		inspector: i,
		closers:   []func() error{c.Close, i.Close},
	}
}

func (c *Client) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EnqueueGeneration queues a generation job and returns its task id. A task
// that is already queued for the job counts as success.
func (c *Client) EnqueueGeneration(ctx context.Context, jobID string) (string, error) {
	task, err := NewGenerationTask(jobID)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task, jobID)
}

// EnqueueCrawl queues a crawl job and returns its task id.
func (c *Client) EnqueueCrawl(ctx context.Context, crawlJobID string) (string, error) {
	task, err := NewCrawlTask(crawlJobID)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task, crawlJobID)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, id string) (string, error) {
	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}

// CancelGeneration deletes a generation task that has not started yet.
func (c *Client) CancelGeneration(ctx context.Context, taskID string) error {
	err := c.inspector.DeleteTask(QueueGeneration, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}
