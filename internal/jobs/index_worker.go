package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/sirupsen/logrus"
)

const indexBatchSize = 20

// IndexJobRepository claims and updates document index jobs.
type IndexJobRepository interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

// DocumentIndexer does the actual chunking and embedding.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, documentID string) error
	FailDocument(ctx context.Context, documentID, reason string) error
}

// IndexWorker processes document index jobs
type IndexWorker struct {
	repo    IndexJobRepository
	indexer DocumentIndexer
	log     logrus.FieldLogger
}

func NewIndexWorker(repo IndexJobRepository, indexer DocumentIndexer, log logrus.FieldLogger) *IndexWorker {
	return &IndexWorker{
		repo:    repo,
		indexer: indexer,
		log:     log.WithField("component", "index_worker"),
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IndexWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, indexBatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	w.log.WithField("count", len(jobs)).Debug("processing index jobs")
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.log.WithError(err).WithField("job_id", job.ID).Error("error processing index job")
		}
	}
	return nil
}

func (w *IndexWorker) processJob(ctx context.Context, job *domain.IndexJob) error {
	log := w.log.WithFields(logrus.Fields{"job_id": job.ID, "document_id": job.DocumentID})

	err := w.indexer.IndexDocument(ctx, job.DocumentID)
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		log.Info("document no longer exists, dropping index job")
		return w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, "document deleted")
	case err != nil:
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}
	log.Info("document indexed")
	return nil
}

// handleJobFailure returns the job to pending until MaxIndexRetries is reached,
// then fails both the job and its document.
func (w *IndexWorker) handleJobFailure(ctx context.Context, job *domain.IndexJob, jobErr error) error {
	log := w.log.WithFields(logrus.Fields{"job_id": job.ID, "document_id": job.DocumentID})

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= domain.MaxIndexRetries {
		log.WithError(jobErr).Warn("index job exceeded max retries")
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		if err := w.indexer.FailDocument(ctx, job.DocumentID, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to mark document failed: %w", err)
		}
		return nil
	}

	log.WithError(jobErr).WithField("attempt", job.Retries+1).Info("index job will be retried")
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IndexJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}
	return nil
}
