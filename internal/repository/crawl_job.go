package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CrawlJobRepository struct {
	db dbtx
}

func NewCrawlJobRepository(pool *pgxpool.Pool) *CrawlJobRepository {
	return &CrawlJobRepository{db: pool}
}

const crawlJobColumns = `id, knowledge_base_id, workspace_id, requested_by, root_url, max_pages, max_depth, status,
	pages_indexed, error, created_at, updated_at, completed_at`

func scanCrawlJob(row pgx.Row) (*domain.CrawlJob, error) {
	var c domain.CrawlJob
	var errMsg *string
	err := row.Scan(&c.ID, &c.KnowledgeBaseID, &c.WorkspaceID, &c.RequestedBy, &c.RootURL, &c.MaxPages, &c.MaxDepth,
		&c.Status, &c.PagesIndexed, &errMsg, &c.CreatedAt, &c.UpdatedAt, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	c.Error = derefString(errMsg)
	return &c, nil
}

func (r *CrawlJobRepository) Create(ctx context.Context, c *domain.CrawlJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO crawl_jobs (`+crawlJobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.KnowledgeBaseID, c.WorkspaceID, c.RequestedBy, c.RootURL, c.MaxPages, c.MaxDepth, c.Status,
		c.PagesIndexed, nullableString(c.Error), c.CreatedAt, c.UpdatedAt, c.CompletedAt,
	)
	return err
}

func (r *CrawlJobRepository) GetByID(ctx context.Context, workspaceID, knowledgeBaseID, id string) (*domain.CrawlJob, error) {
	c, err := scanCrawlJob(r.db.QueryRow(ctx,
		`SELECT `+crawlJobColumns+` FROM crawl_jobs WHERE id = $1 AND knowledge_base_id = $2 AND workspace_id = $3`,
		id, knowledgeBaseID, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCrawlJobNotFound
	}
	return c, err
}

func (r *CrawlJobRepository) Get(ctx context.Context, id string) (*domain.CrawlJob, error) {
	c, err := scanCrawlJob(r.db.QueryRow(ctx, `SELECT `+crawlJobColumns+` FROM crawl_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCrawlJobNotFound
	}
	return c, err
}

func (r *CrawlJobRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE crawl_jobs SET status = 'running', error = NULL, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *CrawlJobRepository) IncrementPages(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE crawl_jobs SET pages_indexed = pages_indexed + 1, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *CrawlJobRepository) Finish(ctx context.Context, id string, status domain.CrawlStatus, errMsg string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx,
		`UPDATE crawl_jobs SET status = $1, error = $2, updated_at = $3, completed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), now, id)
	return err
}
