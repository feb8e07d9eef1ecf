package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type generationFixture struct {
	jobs      *MockGenerationJobRepository
	templates *MockTemplateRepository
	quota     *MockQuotaGuard
	queue     *MockGenerationQueue
	model     *MockLanguageModel
	notifier  *MockNotificationSender
	observer  *MockGenerationObserver
	tx        *testTxRunner
	svc       *GenerationService
}

func newGenerationFixture(uuids ...string) *generationFixture {
	f := &generationFixture{
		jobs:      new(MockGenerationJobRepository),
		templates: new(MockTemplateRepository),
		quota:     new(MockQuotaGuard),
		queue:     new(MockGenerationQueue),
		model:     new(MockLanguageModel),
		notifier:  new(MockNotificationSender),
		observer:  new(MockGenerationObserver),
	}
	f.tx = &testTxRunner{repos: &testTxRepos{generationJobs: f.jobs}}
	renderer := NewCatalogService(new(MockToolRepository), f.templates, NewMockUUIDGenerator(), testLogger())
	f.svc = NewGenerationService(
		f.jobs, f.templates, renderer, f.quota, f.queue, f.notifier, f.tx,
		NewMockUUIDGenerator(uuids...), "gpt-4o", testLogger(),
	).WithModel(f.model).WithObserver(f.observer)
	return f
}

func articleTemplate() *domain.Template {
	return &domain.Template{
		ID:             "tpl-1",
		ToolID:         "tool-1",
		Name:           "Article",
		PromptTemplate: "Write a {{tone}} article about {{topic}}.",
		Fields: []domain.TemplateField{
			{Name: "topic", Type: domain.FieldTypeText, Required: true},
			{Name: "tone", Type: domain.FieldTypeSelect, Options: []string{"friendly", "formal"}},
		},
		Status: domain.TemplateStatusActive,
	}
}

func TestGenerationService_Create(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture("job-1")

	f.templates.On("GetByID", mock.Anything, "ws-1", "tpl-1").Return(articleTemplate(), nil)
	f.quota.On("Meter", mock.Anything, "ws-1", domain.MetricGenerations, int64(1)).Return(nil)
	f.jobs.On("Create", mock.Anything, mock.AnythingOfType("*domain.GenerationJob")).Return(nil)
	f.queue.On("EnqueueGeneration", mock.Anything, "job-1").Return("job-1", nil)
	f.jobs.On("MarkQueued", mock.Anything, "job-1", "job-1").Return(nil)

	job, err := f.svc.Create(ctx, memberPrincipal, "tpl-1", map[string]any{"topic": "Go generics", "tone": "friendly"})

	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "member-1", job.UserID)
	assert.Equal(t, "Write a friendly article about Go generics.", job.Prompt)
	assert.Equal(t, "gpt-4o", job.Model)
	assert.Equal(t, domain.GenerationStatusQueued, job.Status)
	assert.Equal(t, "job-1", job.TaskID)
	f.quota.AssertExpectations(t)
}

func TestGenerationService_Create_TemplateModelWins(t *testing.T) {
	f := newGenerationFixture("job-1")
	tpl := articleTemplate()
	tpl.Model = "gpt-4o-mini"

	f.templates.On("GetByID", mock.Anything, "ws-1", "tpl-1").Return(tpl, nil)
	f.quota.On("Meter", mock.Anything, "ws-1", domain.MetricGenerations, int64(1)).Return(nil)
	f.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.queue.On("EnqueueGeneration", mock.Anything, "job-1").Return("", errors.New("redis down"))

	job, err := f.svc.Create(context.Background(), memberPrincipal, "tpl-1", map[string]any{"topic": "Go"})

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", job.Model)
	// the relay picks it up later
	assert.Equal(t, domain.GenerationStatusPending, job.Status)
	f.jobs.AssertNotCalled(t, "MarkQueued", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerationService_Create_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("missing required input meters nothing", func(t *testing.T) {
		f := newGenerationFixture()
		f.templates.On("GetByID", mock.Anything, "ws-1", "tpl-1").Return(articleTemplate(), nil)

		_, err := f.svc.Create(ctx, memberPrincipal, "tpl-1", map[string]any{"tone": "friendly"})

		assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
		f.quota.AssertNotCalled(t, "Meter", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("archived template", func(t *testing.T) {
		f := newGenerationFixture()
		tpl := articleTemplate()
		tpl.Status = domain.TemplateStatusArchived
		f.templates.On("GetByID", mock.Anything, "ws-1", "tpl-1").Return(tpl, nil)

		_, err := f.svc.Create(ctx, memberPrincipal, "tpl-1", map[string]any{"topic": "Go"})
		assert.ErrorIs(t, err, domain.ErrTemplateArchived)
	})

	t.Run("quota exhausted", func(t *testing.T) {
		f := newGenerationFixture()
		f.templates.On("GetByID", mock.Anything, "ws-1", "tpl-1").Return(articleTemplate(), nil)
		f.quota.On("Meter", mock.Anything, "ws-1", domain.MetricGenerations, int64(1)).Return(domain.QuotaExceeded(domain.MetricGenerations, 50))

		_, err := f.svc.Create(ctx, memberPrincipal, "tpl-1", map[string]any{"topic": "Go"})

		assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
		f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("template id required", func(t *testing.T) {
		f := newGenerationFixture()
		_, err := f.svc.Create(ctx, memberPrincipal, "", nil)
		assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
	})
}

func TestGenerationService_Run(t *testing.T) {
	ctx := context.Background()
	job := &domain.GenerationJob{
		ID: "job-1", WorkspaceID: "ws-1", UserID: "member-1", TemplateID: "tpl-1",
		Prompt: "Write about Go.", Model: "gpt-4o", Status: domain.GenerationStatusQueued,
	}

	t.Run("completes and notifies", func(t *testing.T) {
		f := newGenerationFixture()
		f.jobs.On("Get", mock.Anything, "job-1").Return(job, nil)
		f.jobs.On("MarkRunning", mock.Anything, "job-1").Return(true, nil)
		f.model.On("Complete", mock.Anything, mock.MatchedBy(func(req domain.CompletionRequest) bool {
			return req.Model == "gpt-4o" && len(req.Messages) == 1 &&
				req.Messages[0].Role == domain.ChatRoleUser && req.Messages[0].Content == "Write about Go."
		})).Return(&domain.CompletionResult{Content: "Go is great."}, nil)
		f.jobs.On("Complete", mock.Anything, "job-1", "Go is great.").Return(nil)
		f.observer.On("GenerationFinished", domain.GenerationStatusCompleted).Return()
		f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(in NotifyInput) bool {
			return in.UserID == "member-1" && in.Type == domain.NotificationGenerationCompleted &&
				in.Data["job_id"] == "job-1" && in.Data["template_id"] == "tpl-1"
		})).Return(&domain.Notification{}, nil)

		require.NoError(t, f.svc.Run(ctx, "job-1", false))
		f.notifier.AssertExpectations(t)
		f.observer.AssertExpectations(t)
	})

	t.Run("retryable failure records the error", func(t *testing.T) {
		f := newGenerationFixture()
		f.jobs.On("Get", mock.Anything, "job-1").Return(job, nil)
		f.jobs.On("MarkRunning", mock.Anything, "job-1").Return(true, nil)
		f.model.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))
		f.jobs.On("RecordError", mock.Anything, "job-1", "rate limited").Return(nil)

		err := f.svc.Run(ctx, "job-1", false)

		require.Error(t, err)
		f.jobs.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)
		f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("final attempt fails the job", func(t *testing.T) {
		f := newGenerationFixture()
		f.jobs.On("Get", mock.Anything, "job-1").Return(job, nil)
		f.jobs.On("MarkRunning", mock.Anything, "job-1").Return(true, nil)
		f.model.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
		f.jobs.On("Fail", mock.Anything, "job-1", "boom").Return(nil)
		f.observer.On("GenerationFinished", domain.GenerationStatusFailed).Return()
		f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(in NotifyInput) bool {
			return in.Type == domain.NotificationGenerationFailed && in.Body == "boom"
		})).Return(&domain.Notification{}, nil)

		require.Error(t, f.svc.Run(ctx, "job-1", true))
		f.jobs.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
	})

	t.Run("cancelled jobs are skipped", func(t *testing.T) {
		f := newGenerationFixture()
		cancelled := *job
		cancelled.Status = domain.GenerationStatusCancelled
		f.jobs.On("Get", mock.Anything, "job-1").Return(&cancelled, nil)

		require.NoError(t, f.svc.Run(ctx, "job-1", false))
		f.model.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("lost claim", func(t *testing.T) {
		f := newGenerationFixture()
		f.jobs.On("Get", mock.Anything, "job-1").Return(job, nil)
		f.jobs.On("MarkRunning", mock.Anything, "job-1").Return(false, nil)

		require.NoError(t, f.svc.Run(ctx, "job-1", false))
		f.model.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("no model configured fails the job", func(t *testing.T) {
		f := newGenerationFixture()
		f.svc.model = nil
		f.jobs.On("Get", mock.Anything, "job-1").Return(job, nil)
		f.jobs.On("Fail", mock.Anything, "job-1", domain.ErrModelNotConfigured.Error()).Return(nil)
		f.observer.On("GenerationFinished", domain.GenerationStatusFailed).Return()
		f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(in NotifyInput) bool {
			return in.Type == domain.NotificationGenerationFailed && in.UserID == "member-1"
		})).Return(&domain.Notification{}, nil)

		err := f.svc.Run(ctx, "job-1", false)

		assert.ErrorIs(t, err, domain.ErrModelNotConfigured)
		f.jobs.AssertExpectations(t)
		f.jobs.AssertNotCalled(t, "MarkRunning", mock.Anything, mock.Anything)
		f.notifier.AssertExpectations(t)
	})
}

func TestGenerationService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("queued job", func(t *testing.T) {
		f := newGenerationFixture()
		f.jobs.On("GetByID", ctx, "ws-1", "job-1").Return(&domain.GenerationJob{ID: "job-1", Status: domain.GenerationStatusQueued}, nil)
		f.jobs.On("Cancel", ctx, "ws-1", "job-1").Return(&domain.GenerationJob{ID: "job-1", TaskID: "job-1", Status: domain.GenerationStatusCancelled}, nil)
		f.queue.On("CancelGeneration", ctx, "job-1").Return(errors.New("task is running"))

		job, err := f.svc.Cancel(ctx, memberPrincipal, "job-1")

		require.NoError(t, err)
		assert.Equal(t, domain.GenerationStatusCancelled, job.Status)
	})

	t.Run("finished job", func(t *testing.T) {
		f := newGenerationFixture()
		f.jobs.On("GetByID", ctx, "ws-1", "job-1").Return(&domain.GenerationJob{ID: "job-1", Status: domain.GenerationStatusCompleted}, nil)
		f.jobs.On("Cancel", ctx, "ws-1", "job-1").Return(nil, domain.ErrGenerationNotCancellable)

		_, err := f.svc.Cancel(ctx, memberPrincipal, "job-1")
		assert.ErrorIs(t, err, domain.ErrGenerationNotCancellable)
		f.queue.AssertNotCalled(t, "CancelGeneration", mock.Anything, mock.Anything)
	})
}

func TestGenerationService_List_InvalidStatus(t *testing.T) {
	f := newGenerationFixture()
	_, err := f.svc.List(context.Background(), memberPrincipal, "sleeping", ListInput{})
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestGenerationService_RelayPending(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture()
	stale := []*domain.GenerationJob{
		{ID: "job-1", Status: domain.GenerationStatusPending},
		{ID: "job-2", Status: domain.GenerationStatusPending},
	}
	f.jobs.On("ListStalePending", ctx, mock.AnythingOfType("time.Time"), relayBatchSize).Return(stale, nil)
	f.queue.On("EnqueueGeneration", ctx, "job-1").Return("job-1", nil)
	f.queue.On("EnqueueGeneration", ctx, "job-2").Return("", errors.New("still down"))
	f.jobs.On("MarkQueued", ctx, "job-1", "job-1").Return(nil)

	n, err := f.svc.RelayPending(ctx, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.tx.called)
	assert.Equal(t, domain.GenerationStatusQueued, stale[0].Status)
	assert.Equal(t, domain.GenerationStatusPending, stale[1].Status)
}

func TestGenerationService_ReapStuck(t *testing.T) {
	ctx := context.Background()
	f := newGenerationFixture()
	f.jobs.On("FailStuck", ctx, mock.AnythingOfType("time.Time"), "timed out").Return([]*domain.GenerationJob{
		{ID: "job-1", WorkspaceID: "ws-1", UserID: "member-1"},
	}, nil)
	f.observer.On("GenerationFinished", domain.GenerationStatusFailed).Return()
	f.notifier.On("Send", ctx, mock.MatchedBy(func(in NotifyInput) bool {
		return in.Type == domain.NotificationGenerationFailed && in.Body == "timed out"
	})).Return(&domain.Notification{}, nil)

	n, err := f.svc.ReapStuck(ctx, time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.notifier.AssertExpectations(t)
}
