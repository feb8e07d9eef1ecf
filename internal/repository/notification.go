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

type NotificationRepository struct {
	db dbtx
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: pool}
}

const notificationColumns = `id, workspace_id, user_id, type, title, body, data, read_at, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(&n.ID, &n.WorkspaceID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Data, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	return &n, nil
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.WorkspaceID, n.UserID, n.Type, n.Title, n.Body, data, n.ReadAt, n.CreatedAt,
	)
	return err
}

func (r *NotificationRepository) GetByID(ctx context.Context, workspaceID, userID, id string) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND workspace_id = $2 AND user_id = $3`,
		id, workspaceID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	return n, err
}

func (r *NotificationRepository) List(ctx context.Context, workspaceID, userID string, unreadOnly bool, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Notification], error) {
	limit = pageSize(limit)

	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE workspace_id = $1 AND user_id = $2 AND (NOT $3 OR read_at IS NULL)`
	args := []any{workspaceID, userID, unreadOnly}
	if cursor != nil {
		query += ` AND (created_at, id) < ($4, $5) ORDER BY created_at DESC, id DESC LIMIT $6`
		args = append(args, cursor.Timestamp, cursor.LastID, limit+1)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $4`
		args = append(args, limit+1)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.Build(items, limit, func(n *domain.Notification) (string, time.Time) {
		return n.ID, n.CreatedAt
	}), nil
}

// MarkRead sets read_at if unset and returns the notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, workspaceID, userID, id string, at time.Time) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, $1)
		 WHERE id = $2 AND workspace_id = $3 AND user_id = $4
		 RETURNING `+notificationColumns,
		at, id, workspaceID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	return n, err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, workspaceID, userID string, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read_at = $1 WHERE workspace_id = $2 AND user_id = $3 AND read_at IS NULL`,
		at, workspaceID, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, workspaceID, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND workspace_id = $2 AND user_id = $3`, id, workspaceID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, workspaceID, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE workspace_id = $1 AND user_id = $2 AND read_at IS NULL`,
		workspaceID, userID).Scan(&n)
	return n, err
}

// DeleteReadBefore purges read notifications created before cutoff.
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE read_at IS NOT NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
