package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GenerationJobRepository struct {
	db dbtx
}

func NewGenerationJobRepository(pool *pgxpool.Pool) *GenerationJobRepository {
	return &GenerationJobRepository{db: pool}
}

func NewGenerationJobRepositoryWithTx(tx pgx.Tx) *GenerationJobRepository {
	return &GenerationJobRepository{db: tx}
}

const generationJobColumns = `id, workspace_id, user_id, template_id, inputs, prompt, model, status, output, error,
	attempts, task_id, created_at, updated_at, started_at, completed_at`

func scanGenerationJob(row pgx.Row) (*domain.GenerationJob, error) {
	var j domain.GenerationJob
	var output, errMsg, taskID *string
	err := row.Scan(&j.ID, &j.WorkspaceID, &j.UserID, &j.TemplateID, &j.Inputs, &j.Prompt, &j.Model, &j.Status,
		&output, &errMsg, &j.Attempts, &taskID, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Output = derefString(output)
	j.Error = derefString(errMsg)
	j.TaskID = derefString(taskID)
	if j.Inputs == nil {
		j.Inputs = map[string]string{}
	}
	return &j, nil
}

func collectGenerationJobs(rows pgx.Rows) ([]*domain.GenerationJob, error) {
	defer rows.Close()
	var jobs []*domain.GenerationJob
	for rows.Next() {
		j, err := scanGenerationJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *GenerationJobRepository) Create(ctx context.Context, j *domain.GenerationJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO generation_jobs (id, workspace_id, user_id, template_id, inputs, prompt, model, status,
		   attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.WorkspaceID, j.UserID, j.TemplateID, j.Inputs, j.Prompt, j.Model, j.Status,
		j.Attempts, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

func (r *GenerationJobRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.GenerationJob, error) {
	j, err := scanGenerationJob(r.db.QueryRow(ctx,
		`SELECT `+generationJobColumns+` FROM generation_jobs WHERE id = $1 AND workspace_id = $2`, id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGenerationJobNotFound
	}
	return j, err
}

func (r *GenerationJobRepository) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	j, err := scanGenerationJob(r.db.QueryRow(ctx,
		`SELECT `+generationJobColumns+` FROM generation_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGenerationJobNotFound
	}
	return j, err
}

func (r *GenerationJobRepository) List(ctx context.Context, workspaceID string, status domain.GenerationStatus, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.GenerationJob], error) {
	limit = pageSize(limit)

	query := `SELECT ` + generationJobColumns + ` FROM generation_jobs
		WHERE workspace_id = $1 AND ($2 = '' OR status = $2)`
	args := []any{workspaceID, string(status)}
	if cursor != nil {
		query += ` AND (created_at, id) < ($3, $4) ORDER BY created_at DESC, id DESC LIMIT $5`
		args = append(args, cursor.Timestamp, cursor.LastID, limit+1)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $3`
		args = append(args, limit+1)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	jobs, err := collectGenerationJobs(rows)
	if err != nil {
		return nil, err
	}

	return pagination.Build(jobs, limit, func(j *domain.GenerationJob) (string, time.Time) {
		return j.ID, j.CreatedAt
	}), nil
}

// MarkQueued records the broker task for a pending job. Jobs cancelled in the
// meantime are left untouched.
func (r *GenerationJobRepository) MarkQueued(ctx context.Context, id, taskID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'queued', task_id = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'pending'`,
		taskID, id)
	return err
}

// Cancel moves a pending or queued job to cancelled and returns the updated job.
func (r *GenerationJobRepository) Cancel(ctx context.Context, workspaceID, id string) (*domain.GenerationJob, error) {
	j, err := scanGenerationJob(r.db.QueryRow(ctx,
		`UPDATE generation_jobs SET status = 'cancelled', updated_at = NOW(), completed_at = NOW()
		 WHERE id = $1 AND workspace_id = $2 AND status IN ('pending', 'queued')
		 RETURNING `+generationJobColumns,
		id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGenerationNotCancellable
	}
	return j, err
}

// MarkRunning claims a runnable job for a worker attempt. It returns false when
// the job was cancelled or already finished.
func (r *GenerationJobRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'running', attempts = attempts + 1,
		   started_at = NOW(), updated_at = NOW(), error = NULL
		 WHERE id = $1 AND status IN ('pending', 'queued', 'running')`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *GenerationJobRepository) Complete(ctx context.Context, id, output string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'completed', output = $1, error = NULL,
		   updated_at = NOW(), completed_at = NOW()
		 WHERE id = $2 AND status = 'running'`,
		output, id)
	return err
}

// RecordError stores the last attempt error without ending the job.
func (r *GenerationJobRepository) RecordError(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET error = $1, updated_at = NOW() WHERE id = $2`, errMsg, id)
	return err
}

func (r *GenerationJobRepository) Fail(ctx context.Context, id, errMsg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE generation_jobs SET status = 'failed', error = $1, updated_at = NOW(), completed_at = NOW()
		 WHERE id = $2 AND status IN ('pending', 'queued', 'running')`,
		errMsg, id)
	return err
}

// ListStalePending returns pending jobs created before olderThan, locking them
// so concurrent relays skip each other's rows.
func (r *GenerationJobRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.GenerationJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+generationJobColumns+` FROM generation_jobs
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at
		 FOR UPDATE SKIP LOCKED
		 LIMIT $2`,
		olderThan, pageSize(limit))
	if err != nil {
		return nil, err
	}
	return collectGenerationJobs(rows)
}

// FailStuck fails running jobs that started before olderThan and returns them.
func (r *GenerationJobRepository) FailStuck(ctx context.Context, olderThan time.Time, errMsg string) ([]*domain.GenerationJob, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE generation_jobs SET status = 'failed', error = $1, updated_at = NOW(), completed_at = NOW()
		 WHERE status = 'running' AND started_at < $2
		 RETURNING `+generationJobColumns,
		errMsg, olderThan)
	if err != nil {
		return nil, err
	}
	return collectGenerationJobs(rows)
}
