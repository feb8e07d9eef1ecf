package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IndexJobRepository struct {
	db dbtx
}

func NewIndexJobRepository(pool *pgxpool.Pool) *IndexJobRepository {
	return &IndexJobRepository{db: pool}
}

func NewIndexJobRepositoryWithTx(tx pgx.Tx) *IndexJobRepository {
	return &IndexJobRepository{db: tx}
}

const indexJobColumns = `id, document_id, status, retries, error, created_at, processed_at`

func scanIndexJob(row pgx.Row) (*domain.IndexJob, error) {
	var job domain.IndexJob
	var errMsg *string
	if err := row.Scan(&job.ID, &job.DocumentID, &job.Status, &job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	job.Error = derefString(errMsg)
	return &job, nil
}

func (r *IndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_jobs (`+indexJobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.DocumentID, job.Status, job.Retries, nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *IndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	job, err := scanIndexJob(r.db.QueryRow(ctx, `SELECT `+indexJobColumns+` FROM index_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIndexJobNotFound
	}
	return job, err
}

// ClaimPending moves up to limit pending jobs to processing and returns them.
// Concurrent workers never claim the same job.
func (r *IndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM index_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE index_jobs
		 SET status = $3,
		     error = NULL,
		     processed_at = NULL
		 FROM cte
		 WHERE index_jobs.id = cte.id
		 RETURNING index_jobs.id, index_jobs.document_id, index_jobs.status, index_jobs.retries,
		           index_jobs.error, index_jobs.created_at, index_jobs.processed_at`,
		domain.IndexJobStatusPending, limit, domain.IndexJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*domain.IndexJob, 0)
	for rows.Next() {
		job, err := scanIndexJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *IndexJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.IndexJobStatusCompleted || status == domain.IndexJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}

func (r *IndexJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE index_jobs SET retries = retries + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexJobNotFound
	}
	return nil
}
