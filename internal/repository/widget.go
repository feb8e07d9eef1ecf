package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WidgetRepository struct {
	db dbtx
}

func NewWidgetRepository(pool *pgxpool.Pool) *WidgetRepository {
	return &WidgetRepository{db: pool}
}

func NewWidgetRepositoryWithTx(tx pgx.Tx) *WidgetRepository {
	return &WidgetRepository{db: tx}
}

const widgetColumns = `id, bot_id, workspace_id, version, status, config, created_at, updated_at, published_at, archived_at`

func scanWidget(row pgx.Row) (*domain.WidgetVersion, error) {
	var v domain.WidgetVersion
	err := row.Scan(&v.ID, &v.BotID, &v.WorkspaceID, &v.Version, &v.Status, &v.Config,
		&v.CreatedAt, &v.UpdatedAt, &v.PublishedAt, &v.ArchivedAt)
	if err != nil {
		return nil, err
	}
	if v.Config.AllowedOrigins == nil {
		v.Config.AllowedOrigins = []string{}
	}
	return &v, nil
}

// Create inserts a version numbered one above the bot's current maximum.
// Concurrent creates for one bot can pick the same number; the loser gets
// ErrWidgetVersionConflict.
func (r *WidgetRepository) Create(ctx context.Context, v *domain.WidgetVersion) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO widget_versions (id, bot_id, workspace_id, version, status, config, created_at, updated_at)
		 SELECT $1::uuid, $2::uuid, $3::uuid, COALESCE(MAX(version), 0) + 1, $4::text, $5::jsonb, $6::timestamptz, $7::timestamptz
		 FROM widget_versions WHERE bot_id = $2
		 RETURNING version`,
		v.ID, v.BotID, v.WorkspaceID, v.Status, v.Config, v.CreatedAt, v.UpdatedAt,
	).Scan(&v.Version)
	if isUniqueViolation(err) {
		return domain.ErrWidgetVersionConflict
	}
	return err
}

func (r *WidgetRepository) GetByID(ctx context.Context, workspaceID, botID, id string) (*domain.WidgetVersion, error) {
	v, err := scanWidget(r.db.QueryRow(ctx,
		`SELECT `+widgetColumns+` FROM widget_versions WHERE id = $1 AND bot_id = $2 AND workspace_id = $3`,
		id, botID, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWidgetVersionNotFound
	}
	return v, err
}

// GetForUpdate locks the version row for the duration of the transaction.
func (r *WidgetRepository) GetForUpdate(ctx context.Context, workspaceID, botID, id string) (*domain.WidgetVersion, error) {
	v, err := scanWidget(r.db.QueryRow(ctx,
		`SELECT `+widgetColumns+` FROM widget_versions
		 WHERE id = $1 AND bot_id = $2 AND workspace_id = $3 FOR UPDATE`,
		id, botID, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWidgetVersionNotFound
	}
	return v, err
}

func (r *WidgetRepository) GetPublished(ctx context.Context, botID string) (*domain.WidgetVersion, error) {
	v, err := scanWidget(r.db.QueryRow(ctx,
		`SELECT `+widgetColumns+` FROM widget_versions WHERE bot_id = $1 AND status = 'published'`, botID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoPublishedWidget
	}
	return v, err
}

func (r *WidgetRepository) List(ctx context.Context, workspaceID, botID string) ([]*domain.WidgetVersion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+widgetColumns+` FROM widget_versions
		 WHERE bot_id = $1 AND workspace_id = $2 ORDER BY version DESC`,
		botID, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]*domain.WidgetVersion, 0)
	for rows.Next() {
		v, err := scanWidget(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *WidgetRepository) UpdateConfig(ctx context.Context, v *domain.WidgetVersion) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE widget_versions SET config = $1, updated_at = $2 WHERE id = $3 AND status = 'draft'`,
		v.Config, v.UpdatedAt, v.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWidgetNotDraft
	}
	return nil
}

func (r *WidgetRepository) SetStatus(ctx context.Context, id string, status domain.WidgetStatus, at time.Time) error {
	var query string
	switch status {
	case domain.WidgetStatusPublished:
		query = `UPDATE widget_versions SET status = $1, published_at = $2, updated_at = $2 WHERE id = $3`
	case domain.WidgetStatusArchived:
		query = `UPDATE widget_versions SET status = $1, archived_at = $2, updated_at = $2 WHERE id = $3`
	default:
		query = `UPDATE widget_versions SET status = $1, updated_at = $2 WHERE id = $3`
	}
	tag, err := r.db.Exec(ctx, query, status, at, id)
	if isUniqueViolation(err) {
		return domain.ErrWidgetPublishConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWidgetVersionNotFound
	}
	return nil
}

// ArchivePublished archives whichever version of the bot is currently published.
func (r *WidgetRepository) ArchivePublished(ctx context.Context, botID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE widget_versions SET status = 'archived', archived_at = $1, updated_at = $1
		 WHERE bot_id = $2 AND status = 'published'`,
		at, botID)
	return err
}
