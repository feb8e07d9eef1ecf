package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
)

type BotRepository interface {
	Create(ctx context.Context, b *domain.Bot) error
	GetByID(ctx context.Context, workspaceID, id string) (*domain.Bot, error)
	Get(ctx context.Context, id string) (*domain.Bot, error)
	List(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Bot], error)
	Update(ctx context.Context, b *domain.Bot) error
	Delete(ctx context.Context, workspaceID, id string) error
	Count(ctx context.Context, workspaceID string) (int64, error)
	DetachKnowledgeBase(ctx context.Context, workspaceID, knowledgeBaseID string) error
}

// QuotaGuard is the part of billing other services consult before consuming resources.
type QuotaGuard interface {
	Meter(ctx context.Context, workspaceID, metric string, n int64) error
	CheckCountLimit(ctx context.Context, workspaceID, metric string, current int64) error
}

// BotInput carries the editable fields of a bot. Nil pointers keep defaults
// on create and current values on update.
type BotInput struct {
	Name             string
	Description      string
	SystemPrompt     string
	Model            string
	Temperature      *float32
	MaxTokens        *int
	KnowledgeBaseIDs []string
	Status           domain.BotStatus
}

type BotService struct {
	bots    BotRepository
	kbs     KnowledgeBaseRepository
	quota   QuotaGuard
	uuidGen UUIDGenerator
}

func NewBotService(bots BotRepository, kbs KnowledgeBaseRepository, quota QuotaGuard, uuidGen UUIDGenerator) *BotService {
	return &BotService{bots: bots, kbs: kbs, quota: quota, uuidGen: uuidGen}
}

func (s *BotService) Create(ctx context.Context, p domain.Principal, in BotInput) (*domain.Bot, error) {
	ctx, span := telemetry.StartSpan(ctx, "BotService.Create", telemetry.SpanAttributes{
		WorkspaceID: p.WorkspaceID,
		UserID:      p.UserID,
		Operation:   "create",
	})
	defer span.End()

	count, err := s.bots.Count(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.CheckCountLimit(ctx, p.WorkspaceID, domain.MetricBots, count); err != nil {
		return nil, err
	}

	now := utcNow()
	b := &domain.Bot{
		ID:               s.uuidGen.NewString(),
		WorkspaceID:      p.WorkspaceID,
		Temperature:      domain.DefaultBotTemperature,
		KnowledgeBaseIDs: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	applyBotInput(b, in)
	b.ApplyDefaults()

	if err := s.validate(ctx, b); err != nil {
		return nil, err
	}
	if err := s.bots.Create(ctx, b); err != nil {
		span.SetError(err)
		return nil, err
	}
	return b, nil
}

func (s *BotService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Bot, error) {
	return s.bots.GetByID(ctx, p.WorkspaceID, id)
}

func (s *BotService) List(ctx context.Context, p domain.Principal, in ListInput) (*pagination.Page[*domain.Bot], error) {
	cursor, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, err
	}
	return s.bots.List(ctx, p.WorkspaceID, cursor, in.Limit)
}

func (s *BotService) Update(ctx context.Context, p domain.Principal, id string, in BotInput) (*domain.Bot, error) {
	b, err := s.bots.GetByID(ctx, p.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	applyBotInput(b, in)
	b.ApplyDefaults()
	b.UpdatedAt = utcNow()

	if err := s.validate(ctx, b); err != nil {
		return nil, err
	}
	if err := s.bots.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BotService) Delete(ctx context.Context, p domain.Principal, id string) error {
	if err := requireManager(p); err != nil {
		return err
	}
	return s.bots.Delete(ctx, p.WorkspaceID, id)
}

func (s *BotService) validate(ctx context.Context, b *domain.Bot) error {
	if err := domain.ValidateBot(b); err != nil {
		return err
	}
	b.KnowledgeBaseIDs = dedupe(b.KnowledgeBaseIDs)
	if len(b.KnowledgeBaseIDs) == 0 {
		return nil
	}
	owned, err := s.kbs.CountOwned(ctx, b.WorkspaceID, b.KnowledgeBaseIDs)
	if err != nil {
		return err
	}
	if owned != len(b.KnowledgeBaseIDs) {
		return domain.ErrKnowledgeBaseForeign
	}
	return nil
}

func applyBotInput(b *domain.Bot, in BotInput) {
	if name := strings.TrimSpace(in.Name); name != "" {
		b.Name = name
	}
	b.Description = in.Description
	b.SystemPrompt = in.SystemPrompt
	if in.Model != "" {
		b.Model = in.Model
	}
	if in.Temperature != nil {
		b.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		b.MaxTokens = *in.MaxTokens
	}
	if in.KnowledgeBaseIDs != nil {
		b.KnowledgeBaseIDs = in.KnowledgeBaseIDs
	}
	if in.Status != "" {
		b.Status = in.Status
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
