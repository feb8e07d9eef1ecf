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

type ToolRepository struct {
	db dbtx
}

func NewToolRepository(pool *pgxpool.Pool) *ToolRepository {
	return &ToolRepository{db: pool}
}

const toolColumns = `id, slug, name, description, category, icon, sort_order, created_at, updated_at`

func scanTool(row pgx.Row) (*domain.CreationTool, error) {
	var t domain.CreationTool
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &t.Category, &t.Icon, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ToolRepository) List(ctx context.Context) ([]*domain.CreationTool, error) {
	rows, err := r.db.Query(ctx, `SELECT `+toolColumns+` FROM creation_tools ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tools := make([]*domain.CreationTool, 0)
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

func (r *ToolRepository) GetByID(ctx context.Context, id string) (*domain.CreationTool, error) {
	t, err := scanTool(r.db.QueryRow(ctx, `SELECT `+toolColumns+` FROM creation_tools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrToolNotFound
	}
	return t, err
}

// UpsertBySlug inserts or updates a tool keyed by slug and sets t.ID to the stored ID.
func (r *ToolRepository) UpsertBySlug(ctx context.Context, t *domain.CreationTool) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO creation_tools (`+toolColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (slug) DO UPDATE SET
		   name = EXCLUDED.name, description = EXCLUDED.description, category = EXCLUDED.category,
		   icon = EXCLUDED.icon, sort_order = EXCLUDED.sort_order, updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		t.ID, t.Slug, t.Name, t.Description, t.Category, t.Icon, t.SortOrder, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
}

type TemplateRepository struct {
	db dbtx
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: pool}
}

const templateColumns = `id, tool_id, workspace_id, name, description, prompt_template, fields, model, status,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	var workspaceID *string
	err := row.Scan(&t.ID, &t.ToolID, &workspaceID, &t.Name, &t.Description, &t.PromptTemplate, &t.Fields,
		&t.Model, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.WorkspaceID = derefString(workspaceID)
	if t.Fields == nil {
		t.Fields = []domain.TemplateField{}
	}
	return &t, nil
}

func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.ToolID, nullableString(t.WorkspaceID), t.Name, t.Description, t.PromptTemplate, t.Fields,
		t.Model, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetByID returns the template if it is global or owned by workspaceID.
func (r *TemplateRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE id = $1 AND (workspace_id IS NULL OR workspace_id = $2)`,
		id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTemplateNotFound
	}
	return t, err
}

func (r *TemplateRepository) List(ctx context.Context, workspaceID, toolID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Template], error) {
	limit = pageSize(limit)

	query := `SELECT ` + templateColumns + ` FROM templates
		WHERE (workspace_id IS NULL OR workspace_id = $1) AND status = 'active'
		  AND ($2 = '' OR tool_id::text = $2)`
	args := []any{workspaceID, toolID}
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
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.Build(templates, limit, func(t *domain.Template) (string, time.Time) {
		return t.ID, t.CreatedAt
	}), nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *domain.Template) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE templates SET tool_id = $1, name = $2, description = $3, prompt_template = $4, fields = $5,
		   model = $6, status = $7, updated_at = $8
		 WHERE id = $9 AND workspace_id = $10`,
		t.ToolID, t.Name, t.Description, t.PromptTemplate, t.Fields, t.Model, t.Status, t.UpdatedAt,
		t.ID, t.WorkspaceID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// UpsertGlobal inserts or updates a catalog template keyed by tool and name.
func (r *TemplateRepository) UpsertGlobal(ctx context.Context, t *domain.Template) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tool_id, name) WHERE workspace_id IS NULL DO UPDATE SET
		   description = EXCLUDED.description, prompt_template = EXCLUDED.prompt_template,
		   fields = EXCLUDED.fields, model = EXCLUDED.model, status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id`,
		t.ID, t.ToolID, t.Name, t.Description, t.PromptTemplate, t.Fields, t.Model, t.Status,
		t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
}
