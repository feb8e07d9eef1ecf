package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
	"github.com/sirupsen/logrus"
)

type GenerationJobRepository interface {
	Create(ctx context.Context, j *domain.GenerationJob) error
	GetByID(ctx context.Context, workspaceID, id string) (*domain.GenerationJob, error)
	Get(ctx context.Context, id string) (*domain.GenerationJob, error)
	List(ctx context.Context, workspaceID string, status domain.GenerationStatus, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.GenerationJob], error)
	MarkQueued(ctx context.Context, id, taskID string) error
	Cancel(ctx context.Context, workspaceID, id string) (*domain.GenerationJob, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id, output string) error
	RecordError(ctx context.Context, id, errMsg string) error
	Fail(ctx context.Context, id, errMsg string) error
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.GenerationJob, error)
	FailStuck(ctx context.Context, olderThan time.Time, errMsg string) ([]*domain.GenerationJob, error)
}

// GenerationQueue hands generation jobs to the background workers.
type GenerationQueue interface {
	EnqueueGeneration(ctx context.Context, jobID string) (string, error)
	CancelGeneration(ctx context.Context, taskID string) error
}

// LanguageModel completes a conversation.
type LanguageModel interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error)
}

// PromptRenderer turns a template and validated inputs into a prompt.
type PromptRenderer interface {
	Render(t *domain.Template, inputs map[string]string) (string, error)
}

// GenerationObserver is told about every finished job.
type GenerationObserver interface {
	GenerationFinished(status domain.GenerationStatus)
}

const (
	relayBatchSize        = 50
	generationMaxTokens   = 2048
	generationTemperature = 0.7
)

// GenerationService creates template-driven generation jobs and runs them on workers.
type GenerationService struct {
	jobs         GenerationJobRepository
	templates    TemplateRepository
	renderer     PromptRenderer
	quota        QuotaGuard
	queue        GenerationQueue
	model        LanguageModel
	notifier     NotificationSender
	observer     GenerationObserver
	tx           TxRunner
	uuidGen      UUIDGenerator
	defaultModel string
	log          logrus.FieldLogger
}

func NewGenerationService(
	jobs GenerationJobRepository,
	templates TemplateRepository,
	renderer PromptRenderer,
	quota QuotaGuard,
	queue GenerationQueue,
	notifier NotificationSender,
	tx TxRunner,
	uuidGen UUIDGenerator,
	defaultModel string,
	log logrus.FieldLogger,
) *GenerationService {
	if defaultModel == "" {
		defaultModel = domain.DefaultBotModel
	}
	return &GenerationService{
		jobs:         jobs,
		templates:    templates,
		renderer:     renderer,
		quota:        quota,
		queue:        queue,
		notifier:     notifier,
		tx:           tx,
		uuidGen:      uuidGen,
		defaultModel: defaultModel,
		log:          log.WithField("component", "generation"),
	}
}

// WithModel sets the model used by workers to run jobs.
func (s *GenerationService) WithModel(m LanguageModel) *GenerationService {
	s.model = m
	return s
}

// WithObserver registers a hook for finished jobs.
func (s *GenerationService) WithObserver(o GenerationObserver) *GenerationService {
	s.observer = o
	return s
}

// Create validates inputs against the template, meters one generation and
// queues the job. A failed enqueue leaves the job pending for the relay.
func (s *GenerationService) Create(ctx context.Context, p domain.Principal, templateID string, inputs map[string]any) (*domain.GenerationJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationService.Create", telemetry.SpanAttributes{
		WorkspaceID: p.WorkspaceID,
		UserID:      p.UserID,
		ResourceID:  templateID,
		Operation:   "create",
	})
	defer span.End()

	if templateID == "" {
		return nil, domain.ValidationError("template_id is required")
	}
	t, err := s.templates.GetByID(ctx, p.WorkspaceID, templateID)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TemplateStatusActive {
		return nil, domain.ErrTemplateArchived
	}

	values, err := domain.ValidateInputs(t.Fields, inputs)
	if err != nil {
		return nil, err
	}
	prompt, err := s.renderer.Render(t, values)
	if err != nil {
		return nil, err
	}

	if err := s.quota.Meter(ctx, p.WorkspaceID, domain.MetricGenerations, 1); err != nil {
		return nil, err
	}

	model := t.Model
	if model == "" {
		model = s.defaultModel
	}
	now := utcNow()
	job := &domain.GenerationJob{
		ID:          s.uuidGen.NewString(),
		WorkspaceID: p.WorkspaceID,
		UserID:      p.UserID,
		TemplateID:  t.ID,
		Inputs:      values,
		Prompt:      prompt,
		Model:       model,
		Status:      domain.GenerationStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.enqueue(ctx, s.jobs, job)
	return job, nil
}

func (s *GenerationService) enqueue(ctx context.Context, jobs GenerationJobRepository, job *domain.GenerationJob) bool {
	log := s.log.WithField("job_id", job.ID)
	taskID, err := s.queue.EnqueueGeneration(ctx, job.ID)
	if err != nil {
		log.WithError(err).Warn("failed to enqueue generation job, leaving it for the relay")
		return false
	}
	if err := jobs.MarkQueued(ctx, job.ID, taskID); err != nil {
		log.WithError(err).Warn("failed to mark generation job as queued")
		return true
	}
	job.Status = domain.GenerationStatusQueued
	job.TaskID = taskID
	return true
}

func (s *GenerationService) Get(ctx context.Context, p domain.Principal, id string) (*domain.GenerationJob, error) {
	return s.jobs.GetByID(ctx, p.WorkspaceID, id)
}

func (s *GenerationService) List(ctx context.Context, p domain.Principal, status domain.GenerationStatus, in ListInput) (*pagination.Page[*domain.GenerationJob], error) {
	if status != "" && !domain.IsValidGenerationStatus(status) {
		return nil, domain.ValidationError("invalid status filter: %s", status)
	}
	cursor, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, err
	}
	return s.jobs.List(ctx, p.WorkspaceID, status, cursor, in.Limit)
}

// Cancel stops a job that has not started. The broker task is removed when possible;
// a task that still runs finds the job cancelled and exits.
func (s *GenerationService) Cancel(ctx context.Context, p domain.Principal, id string) (*domain.GenerationJob, error) {
	if _, err := s.jobs.GetByID(ctx, p.WorkspaceID, id); err != nil {
		return nil, err
	}
	job, err := s.jobs.Cancel(ctx, p.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	if job.TaskID != "" {
		if err := s.queue.CancelGeneration(ctx, job.TaskID); err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Debug("could not delete queued task")
		}
	}
	return job, nil
}

// Run executes one attempt of a job. Errors are returned so the broker retries;
// on the final attempt the job is failed and its owner notified. Without a
// model the job fails at once.
func (s *GenerationService) Run(ctx context.Context, jobID string, finalAttempt bool) error {
	ctx, span := telemetry.StartSpan(ctx, "GenerationService.Run", telemetry.SpanAttributes{
		ResourceID: jobID,
		Operation:  "run",
	})
	defer span.End()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"job_id": job.ID, "workspace_id": job.WorkspaceID})
	if !job.IsRunnable() {
		log.WithField("status", job.Status).Debug("skipping generation job")
		return nil
	}
	if s.model == nil {
		return s.handleRunError(ctx, job, domain.ErrModelNotConfigured, true)
	}

	claimed, err := s.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Debug("generation job changed state before it could run")
		return nil
	}

	res, runErr := s.model.Complete(ctx, domain.CompletionRequest{
		Model:       job.Model,
		Messages:    []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: job.Prompt}},
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if runErr != nil {
		span.SetError(runErr)
		return s.handleRunError(ctx, job, runErr, finalAttempt)
	}

	if err := s.jobs.Complete(ctx, job.ID, res.Content); err != nil {
		return err
	}
	log.Info("generation job completed")
	s.finished(ctx, job, domain.GenerationStatusCompleted, "")
	return nil
}

func (s *GenerationService) handleRunError(ctx context.Context, job *domain.GenerationJob, runErr error, finalAttempt bool) error {
	msg := runErr.Error()
	if !finalAttempt {
		if err := s.jobs.RecordError(ctx, job.ID, msg); err != nil {
			s.log.WithError(err).WithField("job_id", job.ID).Warn("failed to record generation error")
		}
		return fmt.Errorf("generation attempt failed: %w", runErr)
	}

	if err := s.jobs.Fail(ctx, job.ID, msg); err != nil {
		return err
	}
	s.log.WithError(runErr).WithField("job_id", job.ID).Warn("generation job failed")
	s.finished(ctx, job, domain.GenerationStatusFailed, msg)
	return fmt.Errorf("generation failed: %w", runErr)
}

func (s *GenerationService) finished(ctx context.Context, job *domain.GenerationJob, status domain.GenerationStatus, errMsg string) {
	if s.observer != nil {
		s.observer.GenerationFinished(status)
	}
	if s.notifier == nil {
		return
	}

	in := NotifyInput{
		WorkspaceID: job.WorkspaceID,
		UserID:      job.UserID,
		Type:        domain.NotificationGenerationCompleted,
		Title:       "Your generation is ready",
		Data:        map[string]any{"job_id": job.ID, "template_id": job.TemplateID},
	}
	if status == domain.GenerationStatusFailed {
		in.Type = domain.NotificationGenerationFailed
		in.Title = "Your generation failed"
		in.Body = errMsg
	}
	if _, err := s.notifier.Send(ctx, in); err != nil {
		s.log.WithError(err).WithField("job_id", job.ID).Warn("failed to notify generation owner")
	}
}

// RelayPending re-enqueues jobs that stayed pending longer than grace.
func (s *GenerationService) RelayPending(ctx context.Context, grace time.Duration) (int, error) {
	relayed := 0
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		stale, err := repos.GenerationJobs().ListStalePending(ctx, utcNow().Add(-grace), relayBatchSize)
		if err != nil {
			return err
		}
		for _, job := range stale {
			if s.enqueue(ctx, repos.GenerationJobs(), job) {
				relayed++
			}
		}
		return nil
	})
	return relayed, err
}

// ReapStuck fails running jobs whose worker never reported back.
func (s *GenerationService) ReapStuck(ctx context.Context, timeout time.Duration) (int, error) {
	jobs, err := s.jobs.FailStuck(ctx, utcNow().Add(-timeout), "timed out")
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		s.finished(ctx, job, domain.GenerationStatusFailed, "timed out")
	}
	return len(jobs), nil
}
