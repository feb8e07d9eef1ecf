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

type BotRepository struct {
	db dbtx
}

func NewBotRepository(pool *pgxpool.Pool) *BotRepository {
	return &BotRepository{db: pool}
}

func NewBotRepositoryWithTx(tx pgx.Tx) *BotRepository {
	return &BotRepository{db: tx}
}

const botColumns = `id, workspace_id, name, description, system_prompt, model, temperature, max_tokens,
	knowledge_base_ids, status, created_at, updated_at`

func scanBot(row pgx.Row) (*domain.Bot, error) {
	var b domain.Bot
	err := row.Scan(&b.ID, &b.WorkspaceID, &b.Name, &b.Description, &b.SystemPrompt, &b.Model,
		&b.Temperature, &b.MaxTokens, &b.KnowledgeBaseIDs, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.KnowledgeBaseIDs == nil {
		b.KnowledgeBaseIDs = []string{}
	}
	return &b, nil
}

func (r *BotRepository) Create(ctx context.Context, b *domain.Bot) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO bots (`+botColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.WorkspaceID, b.Name, b.Description, b.SystemPrompt, b.Model, b.Temperature, b.MaxTokens,
		b.KnowledgeBaseIDs, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (r *BotRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.Bot, error) {
	b, err := scanBot(r.db.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = $1 AND workspace_id = $2`, id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBotNotFound
	}
	return b, err
}

// Get loads a bot without workspace scoping, for public widget traffic.
func (r *BotRepository) Get(ctx context.Context, id string) (*domain.Bot, error) {
	b, err := scanBot(r.db.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBotNotFound
	}
	return b, err
}

func (r *BotRepository) List(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Bot], error) {
	limit = pageSize(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+botColumns+` FROM bots
			 WHERE workspace_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC LIMIT $4`,
			workspaceID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+botColumns+` FROM bots
			 WHERE workspace_id = $1
			 ORDER BY created_at DESC, id DESC LIMIT $2`,
			workspaceID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bots []*domain.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.Build(bots, limit, func(b *domain.Bot) (string, time.Time) {
		return b.ID, b.CreatedAt
	}), nil
}

func (r *BotRepository) Update(ctx context.Context, b *domain.Bot) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bots SET name = $1, description = $2, system_prompt = $3, model = $4, temperature = $5,
		   max_tokens = $6, knowledge_base_ids = $7, status = $8, updated_at = $9
		 WHERE id = $10 AND workspace_id = $11`,
		b.Name, b.Description, b.SystemPrompt, b.Model, b.Temperature, b.MaxTokens,
		b.KnowledgeBaseIDs, b.Status, b.UpdatedAt, b.ID, b.WorkspaceID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

func (r *BotRepository) Delete(ctx context.Context, workspaceID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bots WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

func (r *BotRepository) Count(ctx context.Context, workspaceID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bots WHERE workspace_id = $1`, workspaceID).Scan(&n)
	return n, err
}

// DetachKnowledgeBase removes a deleted knowledge base from every bot that references it.
func (r *BotRepository) DetachKnowledgeBase(ctx context.Context, workspaceID, knowledgeBaseID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE bots SET knowledge_base_ids = array_remove(knowledge_base_ids, $1::uuid), updated_at = NOW()
		 WHERE workspace_id = $2 AND $1::uuid = ANY(knowledge_base_ids)`,
		knowledgeBaseID, workspaceID,
	)
	return err
}
