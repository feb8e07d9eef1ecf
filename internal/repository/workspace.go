package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WorkspaceRepository struct {
	db dbtx
}

func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{db: pool}
}

func NewWorkspaceRepositoryWithTx(tx pgx.Tx) *WorkspaceRepository {
	return &WorkspaceRepository{db: tx}
}

const workspaceColumns = `id, name, slug, created_at, updated_at`

func scanWorkspace(row pgx.Row) (*domain.Workspace, error) {
	var w domain.Workspace
	if err := row.Scan(&w.ID, &w.Name, &w.Slug, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WorkspaceRepository) Create(ctx context.Context, w *domain.Workspace) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workspaces (id, name, slug, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		w.ID, w.Name, w.Slug, w.CreatedAt, w.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrWorkspaceAlreadyExists
	}
	return err
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	w, err := scanWorkspace(r.db.QueryRow(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWorkspaceNotFound
	}
	return w, err
}

func (r *WorkspaceRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workspaces WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

func (r *WorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	rows, err := r.db.Query(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkspaces(rows)
}

func (r *WorkspaceRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Workspace, error) {
	rows, err := r.db.Query(ctx,
		`SELECT w.id, w.name, w.slug, w.created_at, w.updated_at
		 FROM workspaces w
		 JOIN workspace_members m ON m.workspace_id = w.id
		 WHERE m.user_id = $1
		 ORDER BY w.created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkspaces(rows)
}

func collectWorkspaces(rows pgx.Rows) ([]*domain.Workspace, error) {
	workspaces := make([]*domain.Workspace, 0)
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

func (r *WorkspaceRepository) Rename(ctx context.Context, id, name string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE workspaces SET name = $1, updated_at = NOW() WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWorkspaceNotFound
	}
	return nil
}

type MemberRepository struct {
	db dbtx
}

func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{db: pool}
}

func NewMemberRepositoryWithTx(tx pgx.Tx) *MemberRepository {
	return &MemberRepository{db: tx}
}

func (r *MemberRepository) Add(ctx context.Context, m *domain.WorkspaceMember) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role, created_at) VALUES ($1, $2, $3, $4)`,
		m.WorkspaceID, m.UserID, m.Role, m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrMemberAlreadyExists
	}
	return err
}

func (r *MemberRepository) Get(ctx context.Context, workspaceID, userID string) (*domain.WorkspaceMember, error) {
	var m domain.WorkspaceMember
	err := r.db.QueryRow(ctx,
		`SELECT workspace_id, user_id, role, created_at FROM workspace_members
		 WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) List(ctx context.Context, workspaceID string) ([]*domain.WorkspaceMember, error) {
	return r.list(ctx, `SELECT workspace_id, user_id, role, created_at FROM workspace_members
		 WHERE workspace_id = $1 ORDER BY created_at, user_id`, workspaceID)
}

func (r *MemberRepository) ListByRole(ctx context.Context, workspaceID string, role domain.Role) ([]*domain.WorkspaceMember, error) {
	return r.list(ctx, `SELECT workspace_id, user_id, role, created_at FROM workspace_members
		 WHERE workspace_id = $1 AND role = $2 ORDER BY created_at, user_id`, workspaceID, role)
}

func (r *MemberRepository) list(ctx context.Context, query string, args ...any) ([]*domain.WorkspaceMember, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*domain.WorkspaceMember, 0)
	for rows.Next() {
		var m domain.WorkspaceMember
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

func (r *MemberRepository) UpdateRole(ctx context.Context, workspaceID, userID string, role domain.Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE workspace_members SET role = $1 WHERE workspace_id = $2 AND user_id = $3`,
		role, workspaceID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepository) Remove(ctx context.Context, workspaceID, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// CountOwners locks the owner rows so concurrent demotions cannot both pass
// the last-owner check.
func (r *MemberRepository) CountOwners(ctx context.Context, workspaceID string) (int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM workspace_members WHERE workspace_id = $1 AND role = 'owner' FOR UPDATE`,
		workspaceID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}
