package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type APIKeyRepository struct {
	db dbtx
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{db: pool}
}

func NewAPIKeyRepositoryWithTx(tx pgx.Tx) *APIKeyRepository {
	return &APIKeyRepository{db: tx}
}

const apiKeyColumns = `id, workspace_id, user_id, name, key_hash, created_at, last_used_at, revoked_at`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.WorkspaceID, &key.UserID, &key.Name, &key.KeyHash,
		&key.CreatedAt, &key.LastUsedAt, &key.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, workspace_id, user_id, name, key_hash, created_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.WorkspaceID, key.UserID, key.Name, key.KeyHash, key.CreatedAt, key.RevokedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAPIKeyAlreadyExists
	}
	return err
}

func (r *APIKeyRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.APIKey, error) {
	key, err := scanAPIKey(r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 AND workspace_id = $2`, id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key, err
}

func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	key, err := scanAPIKey(r.db.QueryRow(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key, err
}

func (r *APIKeyRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.APIKey, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE workspace_id = $1 ORDER BY created_at DESC, id DESC`,
		workspaceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*domain.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Revoke(ctx context.Context, workspaceID, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND workspace_id = $3 AND revoked_at IS NULL`,
		time.Now().UTC(), id, workspaceID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

// TouchLastUsed records key usage. Writes are skipped within a minute of the previous one.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $1
		 WHERE id = $2 AND (last_used_at IS NULL OR last_used_at < $1 - INTERVAL '1 minute')`,
		at, id,
	)
	return err
}
