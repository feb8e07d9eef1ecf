package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/sirupsen/logrus"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, workspaceID, userID, id string) (*domain.Notification, error)
	List(ctx context.Context, workspaceID, userID string, unreadOnly bool, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Notification], error)
	MarkRead(ctx context.Context, workspaceID, userID, id string, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, workspaceID, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, workspaceID, userID, id string) error
	UnreadCount(ctx context.Context, workspaceID, userID string) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher pushes stored notifications to connected clients.
type Publisher interface {
	Publish(ctx context.Context, n *domain.Notification) error
}

// NotificationSender is the narrow view other services use to notify users.
type NotificationSender interface {
	Send(ctx context.Context, in NotifyInput) (*domain.Notification, error)
}

// NotifyInput is a notification to be created for one recipient.
type NotifyInput struct {
	WorkspaceID string
	UserID      string
	Type        string
	Title       string
	Body        string
	Data        map[string]any
}

// NotificationService stores per-user notifications and publishes them for realtime delivery.
type NotificationService struct {
	repo      NotificationRepository
	publisher Publisher
	uuidGen   UUIDGenerator
	log       logrus.FieldLogger
}

func NewNotificationService(repo NotificationRepository, publisher Publisher, uuidGen UUIDGenerator, log logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		repo:      repo,
		publisher: publisher,
		uuidGen:   uuidGen,
		log:       log.WithField("component", "notifications"),
	}
}

// Send persists the notification and then publishes it. Publishing is best
// effort: a client that misses the push still finds the row on its next list.
func (s *NotificationService) Send(ctx context.Context, in NotifyInput) (*domain.Notification, error) {
	data := in.Data
	if data == nil {
		data = map[string]any{}
	}
	n := &domain.Notification{
		ID:          s.uuidGen.NewString(),
		WorkspaceID: in.WorkspaceID,
		UserID:      in.UserID,
		Type:        in.Type,
		Title:       in.Title,
		Body:        in.Body,
		Data:        data,
		CreatedAt:   utcNow(),
	}
	if err := domain.ValidateNotification(n); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, n); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"notification_id": n.ID,
				"user_id":         n.UserID,
			}).Warn("failed to publish notification")
		}
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, p domain.Principal, unreadOnly bool, in ListInput) (*pagination.Page[*domain.Notification], error) {
	cursor, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, p.WorkspaceID, p.UserID, unreadOnly, cursor, in.Limit)
}

func (s *NotificationService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, p.WorkspaceID, p.UserID, id)
}

func (s *NotificationService) MarkRead(ctx context.Context, p domain.Principal, id string) (*domain.Notification, error) {
	return s.repo.MarkRead(ctx, p.WorkspaceID, p.UserID, id, utcNow())
}

// MarkAllRead returns how many notifications changed state.
func (s *NotificationService) MarkAllRead(ctx context.Context, p domain.Principal) (int64, error) {
	return s.repo.MarkAllRead(ctx, p.WorkspaceID, p.UserID, utcNow())
}

func (s *NotificationService) Delete(ctx context.Context, p domain.Principal, id string) error {
	return s.repo.Delete(ctx, p.WorkspaceID, p.UserID, id)
}

func (s *NotificationService) UnreadCount(ctx context.Context, workspaceID, userID string) (int64, error) {
	return s.repo.UnreadCount(ctx, workspaceID, userID)
}

// PurgeRead removes read notifications older than retention.
func (s *NotificationService) PurgeRead(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteReadBefore(ctx, utcNow().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("deleted", n).Info("purged read notifications")
	}
	return n, nil
}
