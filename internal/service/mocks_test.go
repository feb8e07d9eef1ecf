package service

import (
	"context"
	"io"
	"time"

	"github.com/cloo-solutions/botstudio/internal/crawler"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, workspaceID string, id string) (*domain.APIKey, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.APIKey, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, workspaceID string, id string) error {
	args := m.Called(ctx, workspaceID, id)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockWorkspaceRepository struct {
	mock.Mock
}

func (m *MockWorkspaceRepository) Create(ctx context.Context, w *domain.Workspace) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWorkspaceRepository) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockWorkspaceRepository) List(ctx context.Context) ([]*domain.Workspace, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Workspace, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceRepository) Rename(ctx context.Context, id string, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Add(ctx context.Context, member *domain.WorkspaceMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepository) Get(ctx context.Context, workspaceID string, userID string) (*domain.WorkspaceMember, error) {
	args := m.Called(ctx, workspaceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkspaceMember), args.Error(1)
}

func (m *MockMemberRepository) List(ctx context.Context, workspaceID string) ([]*domain.WorkspaceMember, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WorkspaceMember), args.Error(1)
}

func (m *MockMemberRepository) ListByRole(ctx context.Context, workspaceID string, role domain.Role) ([]*domain.WorkspaceMember, error) {
	args := m.Called(ctx, workspaceID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WorkspaceMember), args.Error(1)
}

func (m *MockMemberRepository) UpdateRole(ctx context.Context, workspaceID string, userID string, role domain.Role) error {
	args := m.Called(ctx, workspaceID, userID, role)
	return args.Error(0)
}

func (m *MockMemberRepository) Remove(ctx context.Context, workspaceID string, userID string) error {
	args := m.Called(ctx, workspaceID, userID)
	return args.Error(0)
}

func (m *MockMemberRepository) CountOwners(ctx context.Context, workspaceID string) (int, error) {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).(int), args.Error(1)
}

type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) Upsert(ctx context.Context, p *domain.Plan) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Plan), args.Error(1)
}

func (m *MockPlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Plan), args.Error(1)
}

type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) GetByWorkspace(ctx context.Context, workspaceID string) (*domain.Subscription, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) Get(ctx context.Context, workspaceID string, metric string, periodStart time.Time) (int64, error) {
	args := m.Called(ctx, workspaceID, metric, periodStart)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUsageRepository) Increment(ctx context.Context, workspaceID string, metric string, periodStart time.Time, n int64, limit int64) (int64, bool, error) {
	args := m.Called(ctx, workspaceID, metric, periodStart, n, limit)
	return args.Get(0).(int64), args.Get(1).(bool), args.Error(2)
}

func (m *MockUsageRepository) RecordAlert(ctx context.Context, workspaceID string, metric string, periodStart time.Time, threshold int) (bool, error) {
	args := m.Called(ctx, workspaceID, metric, periodStart, threshold)
	return args.Get(0).(bool), args.Error(1)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepository) GetByID(ctx context.Context, workspaceID string, userID string, id string) (*domain.Notification, error) {
	args := m.Called(ctx, workspaceID, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) List(ctx context.Context, workspaceID string, userID string, unreadOnly bool, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Notification], error) {
	args := m.Called(ctx, workspaceID, userID, unreadOnly, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.Notification]), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, workspaceID string, userID string, id string, at time.Time) (*domain.Notification, error) {
	args := m.Called(ctx, workspaceID, userID, id, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkAllRead(ctx context.Context, workspaceID string, userID string, at time.Time) (int64, error) {
	args := m.Called(ctx, workspaceID, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) Delete(ctx context.Context, workspaceID string, userID string, id string) error {
	args := m.Called(ctx, workspaceID, userID, id)
	return args.Error(0)
}

func (m *MockNotificationRepository) UnreadCount(ctx context.Context, workspaceID string, userID string) (int64, error) {
	args := m.Called(ctx, workspaceID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockNotificationSender struct {
	mock.Mock
}

func (m *MockNotificationSender) Send(ctx context.Context, in NotifyInput) (*domain.Notification, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

type MockBotRepository struct {
	mock.Mock
}

func (m *MockBotRepository) Create(ctx context.Context, b *domain.Bot) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBotRepository) GetByID(ctx context.Context, workspaceID string, id string) (*domain.Bot, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bot), args.Error(1)
}

func (m *MockBotRepository) Get(ctx context.Context, id string) (*domain.Bot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bot), args.Error(1)
}

func (m *MockBotRepository) List(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Bot], error) {
	args := m.Called(ctx, workspaceID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.Bot]), args.Error(1)
}

func (m *MockBotRepository) Update(ctx context.Context, b *domain.Bot) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockBotRepository) Delete(ctx context.Context, workspaceID string, id string) error {
	args := m.Called(ctx, workspaceID, id)
	return args.Error(0)
}

func (m *MockBotRepository) Count(ctx context.Context, workspaceID string) (int64, error) {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBotRepository) DetachKnowledgeBase(ctx context.Context, workspaceID string, knowledgeBaseID string) error {
	args := m.Called(ctx, workspaceID, knowledgeBaseID)
	return args.Error(0)
}

type MockQuotaGuard struct {
	mock.Mock
}

func (m *MockQuotaGuard) Meter(ctx context.Context, workspaceID string, metric string, n int64) error {
	args := m.Called(ctx, workspaceID, metric, n)
	return args.Error(0)
}

func (m *MockQuotaGuard) CheckCountLimit(ctx context.Context, workspaceID string, metric string, current int64) error {
	args := m.Called(ctx, workspaceID, metric, current)
	return args.Error(0)
}

type MockKnowledgeBaseRepository struct {
	mock.Mock
}

func (m *MockKnowledgeBaseRepository) Create(ctx context.Context, kb *domain.KnowledgeBase) error {
	args := m.Called(ctx, kb)
	return args.Error(0)
}

func (m *MockKnowledgeBaseRepository) GetByID(ctx context.Context, workspaceID string, id string) (*domain.KnowledgeBase, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeBase), args.Error(1)
}

func (m *MockKnowledgeBaseRepository) List(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.KnowledgeBase], error) {
	args := m.Called(ctx, workspaceID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.KnowledgeBase]), args.Error(1)
}

func (m *MockKnowledgeBaseRepository) Update(ctx context.Context, kb *domain.KnowledgeBase) error {
	args := m.Called(ctx, kb)
	return args.Error(0)
}

func (m *MockKnowledgeBaseRepository) Delete(ctx context.Context, workspaceID string, id string) error {
	args := m.Called(ctx, workspaceID, id)
	return args.Error(0)
}

func (m *MockKnowledgeBaseRepository) CountOwned(ctx context.Context, workspaceID string, ids []string) (int, error) {
	args := m.Called(ctx, workspaceID, ids)
	return args.Get(0).(int), args.Error(1)
}

type MockWidgetRepository struct {
	mock.Mock
}

func (m *MockWidgetRepository) Create(ctx context.Context, v *domain.WidgetVersion) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockWidgetRepository) GetByID(ctx context.Context, workspaceID string, botID string, id string) (*domain.WidgetVersion, error) {
	args := m.Called(ctx, workspaceID, botID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WidgetVersion), args.Error(1)
}

func (m *MockWidgetRepository) GetForUpdate(ctx context.Context, workspaceID string, botID string, id string) (*domain.WidgetVersion, error) {
	args := m.Called(ctx, workspaceID, botID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WidgetVersion), args.Error(1)
}

func (m *MockWidgetRepository) GetPublished(ctx context.Context, botID string) (*domain.WidgetVersion, error) {
	args := m.Called(ctx, botID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WidgetVersion), args.Error(1)
}

func (m *MockWidgetRepository) List(ctx context.Context, workspaceID string, botID string) ([]*domain.WidgetVersion, error) {
	args := m.Called(ctx, workspaceID, botID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WidgetVersion), args.Error(1)
}

func (m *MockWidgetRepository) UpdateConfig(ctx context.Context, v *domain.WidgetVersion) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockWidgetRepository) SetStatus(ctx context.Context, id string, status domain.WidgetStatus, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

func (m *MockWidgetRepository) ArchivePublished(ctx context.Context, botID string, at time.Time) error {
	args := m.Called(ctx, botID, at)
	return args.Error(0)
}

type MockGenerationJobRepository struct {
	mock.Mock
}

func (m *MockGenerationJobRepository) Create(ctx context.Context, j *domain.GenerationJob) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockGenerationJobRepository) GetByID(ctx context.Context, workspaceID string, id string) (*domain.GenerationJob, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenerationJob), args.Error(1)
}

func (m *MockGenerationJobRepository) Get(ctx context.Context, id string) (*domain.GenerationJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenerationJob), args.Error(1)
}

func (m *MockGenerationJobRepository) List(ctx context.Context, workspaceID string, status domain.GenerationStatus, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.GenerationJob], error) {
	args := m.Called(ctx, workspaceID, status, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.GenerationJob]), args.Error(1)
}

func (m *MockGenerationJobRepository) MarkQueued(ctx context.Context, id string, taskID string) error {
	args := m.Called(ctx, id, taskID)
	return args.Error(0)
}

func (m *MockGenerationJobRepository) Cancel(ctx context.Context, workspaceID string, id string) (*domain.GenerationJob, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GenerationJob), args.Error(1)
}

func (m *MockGenerationJobRepository) MarkRunning(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(bool), args.Error(1)
}

func (m *MockGenerationJobRepository) Complete(ctx context.Context, id string, output string) error {
	args := m.Called(ctx, id, output)
	return args.Error(0)
}

func (m *MockGenerationJobRepository) RecordError(ctx context.Context, id string, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockGenerationJobRepository) Fail(ctx context.Context, id string, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockGenerationJobRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*domain.GenerationJob, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.GenerationJob), args.Error(1)
}

func (m *MockGenerationJobRepository) FailStuck(ctx context.Context, olderThan time.Time, errMsg string) ([]*domain.GenerationJob, error) {
	args := m.Called(ctx, olderThan, errMsg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.GenerationJob), args.Error(1)
}

type MockGenerationQueue struct {
	mock.Mock
}

func (m *MockGenerationQueue) EnqueueGeneration(ctx context.Context, jobID string) (string, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(string), args.Error(1)
}

func (m *MockGenerationQueue) CancelGeneration(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

type MockLanguageModel struct {
	mock.Mock
}

func (m *MockLanguageModel) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompletionResult), args.Error(1)
}

type MockGenerationObserver struct {
	mock.Mock
}

func (m *MockGenerationObserver) GenerationFinished(status domain.GenerationStatus) {
	m.Called(status)
}

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Create(ctx context.Context, t *domain.Template) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, workspaceID string, id string) (*domain.Template, error) {
	args := m.Called(ctx, workspaceID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Template), args.Error(1)
}

func (m *MockTemplateRepository) List(ctx context.Context, workspaceID string, toolID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.Template], error) {
	args := m.Called(ctx, workspaceID, toolID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.Template]), args.Error(1)
}

func (m *MockTemplateRepository) Update(ctx context.Context, t *domain.Template) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTemplateRepository) UpsertGlobal(ctx context.Context, t *domain.Template) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

type MockToolRepository struct {
	mock.Mock
}

func (m *MockToolRepository) List(ctx context.Context) ([]*domain.CreationTool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CreationTool), args.Error(1)
}

func (m *MockToolRepository) GetByID(ctx context.Context, id string) (*domain.CreationTool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreationTool), args.Error(1)
}

func (m *MockToolRepository) UpsertBySlug(ctx context.Context, t *domain.CreationTool) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.KnowledgeDocument) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, workspaceID string, knowledgeBaseID string, id string) (*domain.KnowledgeDocument, error) {
	args := m.Called(ctx, workspaceID, knowledgeBaseID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeDocument), args.Error(1)
}

func (m *MockDocumentRepository) Get(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeDocument), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, workspaceID string, knowledgeBaseID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.KnowledgeDocument], error) {
	args := m.Called(ctx, workspaceID, knowledgeBaseID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.Page[*domain.KnowledgeDocument]), args.Error(1)
}

func (m *MockDocumentRepository) ListStorageKeys(ctx context.Context, knowledgeBaseID string) ([]string, error) {
	args := m.Called(ctx, knowledgeBaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockDocumentRepository) SetContent(ctx context.Context, id string, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockDocumentRepository) MarkUploaded(ctx context.Context, id string, sizeBytes int64) error {
	args := m.Called(ctx, id, sizeBytes)
	return args.Error(0)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, workspaceID string, id string) error {
	args := m.Called(ctx, workspaceID, id)
	return args.Error(0)
}

func (m *MockDocumentRepository) CountByWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).(int64), args.Error(1)
}

type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	args := m.Called(ctx, documentID, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) Search(ctx context.Context, knowledgeBaseIDs []string, embedding []float32, limit int) ([]*domain.SearchHit, error) {
	args := m.Called(ctx, knowledgeBaseIDs, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchHit), args.Error(1)
}

type MockCrawlJobRepository struct {
	mock.Mock
}

func (m *MockCrawlJobRepository) Create(ctx context.Context, c *domain.CrawlJob) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCrawlJobRepository) GetByID(ctx context.Context, workspaceID string, knowledgeBaseID string, id string) (*domain.CrawlJob, error) {
	args := m.Called(ctx, workspaceID, knowledgeBaseID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CrawlJob), args.Error(1)
}

func (m *MockCrawlJobRepository) Get(ctx context.Context, id string) (*domain.CrawlJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CrawlJob), args.Error(1)
}

func (m *MockCrawlJobRepository) MarkRunning(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCrawlJobRepository) IncrementPages(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCrawlJobRepository) Finish(ctx context.Context, id string, status domain.CrawlStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	args := m.Called(ctx, key, contentType)
	return args.Get(0).(string), args.Error(1)
}

func (m *MockObjectStore) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ObjectMetadata), args.Error(1)
}

func (m *MockObjectStore) GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	args := m.Called(ctx, key, maxBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStore) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockCrawlQueue struct {
	mock.Mock
}

func (m *MockCrawlQueue) EnqueueCrawl(ctx context.Context, crawlJobID string) (string, error) {
	args := m.Called(ctx, crawlJobID)
	return args.Get(0).(string), args.Error(1)
}

type MockSiteCrawler struct {
	mock.Mock
}

func (m *MockSiteCrawler) Crawl(ctx context.Context, rootURL string, opts crawler.Options, visit crawler.VisitFunc) error {
	args := m.Called(ctx, rootURL, opts, visit)
	return args.Error(0)
}

type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockIndexJobRepository struct {
	mock.Mock
}

func (m *MockIndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockIndexJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockIndexJobRepository) IncrementRetries(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSessionIssuer struct {
	mock.Mock
}

func (m *MockSessionIssuer) Issue(botID string, workspaceID string) (string, *domain.WidgetSession, error) {
	args := m.Called(botID, workspaceID)
	return args.Get(0).(string), args.Get(1).(*domain.WidgetSession), args.Error(2)
}

func (m *MockSessionIssuer) Verify(token string) (*domain.WidgetSession, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WidgetSession), args.Error(1)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(key string) bool {
	args := m.Called(key)
	return args.Get(0).(bool)
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, kbIDs []string, query string, limit int) ([]*domain.SearchHit, error) {
	args := m.Called(ctx, kbIDs, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchHit), args.Error(1)
}

type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		id := m.uuids[m.callCount]
		m.callCount++
		return id
	}
	return "default-uuid"
}

// testTxRepos hands the same mocks to code running inside a transaction.
type testTxRepos struct {
	workspaces     WorkspaceRepository
	members        MemberRepository
	apiKeys        APIKeyRepository
	subscriptions  SubscriptionRepository
	bots           BotRepository
	widgets        WidgetRepository
	knowledgeBases KnowledgeBaseRepository
	documents      DocumentRepository
	chunks         ChunkRepository
	indexJobs      IndexJobRepository
	generationJobs GenerationJobRepository
}

func (t *testTxRepos) Workspaces() WorkspaceRepository         { return t.workspaces }
func (t *testTxRepos) Members() MemberRepository               { return t.members }
func (t *testTxRepos) APIKeys() APIKeyRepository               { return t.apiKeys }
func (t *testTxRepos) Subscriptions() SubscriptionRepository   { return t.subscriptions }
func (t *testTxRepos) Bots() BotRepository                     { return t.bots }
func (t *testTxRepos) Widgets() WidgetRepository               { return t.widgets }
func (t *testTxRepos) KnowledgeBases() KnowledgeBaseRepository { return t.knowledgeBases }
func (t *testTxRepos) Documents() DocumentRepository           { return t.documents }
func (t *testTxRepos) Chunks() ChunkRepository                 { return t.chunks }
func (t *testTxRepos) IndexJobs() IndexJobRepository           { return t.indexJobs }
func (t *testTxRepos) GenerationJobs() GenerationJobRepository { return t.generationJobs }

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
