package service

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
)

type WidgetRepository interface {
	Create(ctx context.Context, v *domain.WidgetVersion) error
	GetByID(ctx context.Context, workspaceID, botID, id string) (*domain.WidgetVersion, error)
	GetForUpdate(ctx context.Context, workspaceID, botID, id string) (*domain.WidgetVersion, error)
	GetPublished(ctx context.Context, botID string) (*domain.WidgetVersion, error)
	List(ctx context.Context, workspaceID, botID string) ([]*domain.WidgetVersion, error)
	UpdateConfig(ctx context.Context, v *domain.WidgetVersion) error
	SetStatus(ctx context.Context, id string, status domain.WidgetStatus, at time.Time) error
	ArchivePublished(ctx context.Context, botID string, at time.Time) error
}

// WidgetService manages the draft/published/archived lifecycle of widget versions.
type WidgetService struct {
	widgets WidgetRepository
	bots    BotRepository
	tx      TxRunner
	uuidGen UUIDGenerator
}

func NewWidgetService(widgets WidgetRepository, bots BotRepository, tx TxRunner, uuidGen UUIDGenerator) *WidgetService {
	return &WidgetService{widgets: widgets, bots: bots, tx: tx, uuidGen: uuidGen}
}

// CreateDraft adds a new draft version. A nil config starts from the defaults.
func (s *WidgetService) CreateDraft(ctx context.Context, p domain.Principal, botID string, cfg *domain.WidgetConfig) (*domain.WidgetVersion, error) {
	bot, err := s.bots.GetByID(ctx, p.WorkspaceID, botID)
	if err != nil {
		return nil, err
	}

	config := domain.DefaultWidgetConfig(bot.Name)
	if cfg != nil {
		config = *cfg
	}
	if config.AllowedOrigins == nil {
		config.AllowedOrigins = []string{}
	}
	if err := domain.ValidateWidgetConfig(config); err != nil {
		return nil, err
	}

	now := utcNow()
	v := &domain.WidgetVersion{
		ID:          s.uuidGen.NewString(),
		BotID:       bot.ID,
		WorkspaceID: p.WorkspaceID,
		Status:      domain.WidgetStatusDraft,
		Config:      config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.widgets.Create(ctx, v)
	if errors.Is(err, domain.ErrWidgetVersionConflict) {
		err = s.widgets.Create(ctx, v)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *WidgetService) UpdateDraft(ctx context.Context, p domain.Principal, botID, id string, cfg domain.WidgetConfig) (*domain.WidgetVersion, error) {
	v, err := s.widgets.GetByID(ctx, p.WorkspaceID, botID, id)
	if err != nil {
		return nil, err
	}
	if v.Status != domain.WidgetStatusDraft {
		return nil, domain.ErrWidgetNotDraft
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{}
	}
	if err := domain.ValidateWidgetConfig(cfg); err != nil {
		return nil, err
	}

	v.Config = cfg
	v.UpdatedAt = utcNow()
	if err := s.widgets.UpdateConfig(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Publish makes a draft the live version and archives the previous one atomically.
func (s *WidgetService) Publish(ctx context.Context, p domain.Principal, botID, id string) (*domain.WidgetVersion, error) {
	ctx, span := telemetry.StartSpan(ctx, "WidgetService.Publish", telemetry.SpanAttributes{
		WorkspaceID: p.WorkspaceID,
		ResourceID:  id,
		Operation:   "publish",
	})
	defer span.End()

	var published *domain.WidgetVersion
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		v, err := repos.Widgets().GetForUpdate(ctx, p.WorkspaceID, botID, id)
		if err != nil {
			return err
		}
		if v.Status != domain.WidgetStatusDraft {
			return domain.ErrWidgetNotDraft
		}

		at := utcNow()
		if err := repos.Widgets().ArchivePublished(ctx, botID, at); err != nil {
			return err
		}
		if err := repos.Widgets().SetStatus(ctx, v.ID, domain.WidgetStatusPublished, at); err != nil {
			return err
		}
		v.Status = domain.WidgetStatusPublished
		v.PublishedAt = &at
		v.UpdatedAt = at
		published = v
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	return published, nil
}

// Archive retires a draft or published version. Archived is terminal.
func (s *WidgetService) Archive(ctx context.Context, p domain.Principal, botID, id string) (*domain.WidgetVersion, error) {
	v, err := s.widgets.GetByID(ctx, p.WorkspaceID, botID, id)
	if err != nil {
		return nil, err
	}
	if !v.CanTransition(domain.WidgetStatusArchived) {
		return nil, domain.ErrWidgetArchived
	}

	at := utcNow()
	if err := s.widgets.SetStatus(ctx, v.ID, domain.WidgetStatusArchived, at); err != nil {
		return nil, err
	}
	v.Status = domain.WidgetStatusArchived
	v.ArchivedAt = &at
	v.UpdatedAt = at
	return v, nil
}

func (s *WidgetService) Get(ctx context.Context, p domain.Principal, botID, id string) (*domain.WidgetVersion, error) {
	return s.widgets.GetByID(ctx, p.WorkspaceID, botID, id)
}

func (s *WidgetService) List(ctx context.Context, p domain.Principal, botID string) ([]*domain.WidgetVersion, error) {
	if _, err := s.bots.GetByID(ctx, p.WorkspaceID, botID); err != nil {
		return nil, err
	}
	return s.widgets.List(ctx, p.WorkspaceID, botID)
}

// GetPublished returns the live widget of an active bot, for anonymous visitors.
func (s *WidgetService) GetPublished(ctx context.Context, botID string) (*domain.Bot, *domain.WidgetVersion, error) {
	bot, err := s.bots.Get(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if !bot.IsActive() {
		return nil, nil, domain.ErrNoPublishedWidget
	}
	v, err := s.widgets.GetPublished(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	return bot, v, nil
}
