// Package queue moves generation and crawl work to asynq workers.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeGenerationRun  = "generation:run"
	TypeKnowledgeCrawl = "knowledge:crawl"
)

const (
	QueueGeneration = "generation"
	QueueKnowledge  = "knowledge"
)

const (
	generationMaxRetry = 3
	generationTimeout  = 5 * time.Minute
	crawlMaxRetry      = 1
	crawlTimeout       = 30 * time.Minute
)

type GenerationPayload struct {
	JobID string `json:"job_id"`
}

type CrawlPayload struct {
	CrawlJobID string `json:"crawl_job_id"`
}

// NewGenerationTask builds a task whose id is the job id so a job is never queued twice.
func NewGenerationTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerationPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerationRun, payload,
		asynq.TaskID(jobID),
		asynq.Queue(QueueGeneration),
		asynq.MaxRetry(generationMaxRetry),
		asynq.Timeout(generationTimeout),
	), nil
}

func NewCrawlTask(crawlJobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CrawlPayload{CrawlJobID: crawlJobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeKnowledgeCrawl, payload,
		asynq.TaskID(crawlJobID),
		asynq.Queue(QueueKnowledge),
		asynq.MaxRetry(crawlMaxRetry),
		asynq.Timeout(crawlTimeout),
	), nil
}

func parseGenerationPayload(t *asynq.Task) (GenerationPayload, error) {
	var p GenerationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.JobID == "" {
		return p, fmt.Errorf("%s payload without job_id: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}

func parseCrawlPayload(t *asynq.Task) (CrawlPayload, error) {
	var p CrawlPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.CrawlJobID == "" {
		return p, fmt.Errorf("%s payload without crawl_job_id: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}
