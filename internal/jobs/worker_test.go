package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIndexJobRepository is a mock implementation of IndexJobRepository
type MockIndexJobRepository struct {
	mock.Mock
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

// MockDocumentIndexer is a mock implementation of DocumentIndexer
type MockDocumentIndexer struct {
	mock.Mock
}

func (m *MockDocumentIndexer) IndexDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockDocumentIndexer) FailDocument(ctx context.Context, documentID, reason string) error {
	args := m.Called(ctx, documentID, reason)
	return args.Error(0)
}

type MockRelayer struct {
	mock.Mock
}

func (m *MockRelayer) RelayPending(ctx context.Context, grace time.Duration) (int, error) {
	args := m.Called(ctx, grace)
	return args.Int(0), args.Error(1)
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(200 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_SurvivesPanics(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(nil)

	worker := NewWorker("test", mockProcessor, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	worker.Stop()
	<-done

	assert.GreaterOrEqual(t, len(mockProcessor.Calls), 2)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestIndexWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockDocumentIndexer)

	mockRepo.On("ClaimPending", mock.Anything, indexBatchSize).Return([]*domain.IndexJob{}, nil)

	worker := NewIndexWorker(mockRepo, mockIndexer, testLogger())
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertNotCalled(t, "IndexDocument", mock.Anything, mock.Anything)
}

func TestIndexWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockDocumentIndexer)

	job := &domain.IndexJob{ID: "job-1", DocumentID: "doc-1", Status: domain.IndexJobStatusProcessing}

	mockRepo.On("ClaimPending", mock.Anything, indexBatchSize).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusCompleted, "").Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer, testLogger())
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertExpectations(t)
}

func TestIndexWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockDocumentIndexer)

	job := &domain.IndexJob{ID: "job-1", DocumentID: "doc-1", Retries: 0}

	mockRepo.On("ClaimPending", mock.Anything, indexBatchSize).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(errors.New("embedding failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusPending, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer, testLogger())
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertNotCalled(t, "FailDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockDocumentIndexer)

	job := &domain.IndexJob{ID: "job-1", DocumentID: "doc-1", Retries: domain.MaxIndexRetries - 1}

	mockRepo.On("ClaimPending", mock.Anything, indexBatchSize).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(errors.New("embedding failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)
	mockIndexer.On("FailDocument", mock.Anything, "doc-1", "embedding failed").Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer, testLogger())
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertExpectations(t)
}

func TestIndexWorker_ProcessJobs_DocumentDeleted(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockDocumentIndexer)

	job := &domain.IndexJob{ID: "job-1", DocumentID: "doc-1"}

	mockRepo.On("ClaimPending", mock.Anything, indexBatchSize).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(domain.ErrDocumentNotFound)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusFailed, "document deleted").Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer, testLogger())
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "IncrementRetries", mock.Anything, mock.Anything)
}

func TestIndexWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockDocumentIndexer)

	mockRepo.On("ClaimPending", mock.Anything, indexBatchSize).Return(nil, errors.New("database error"))

	worker := NewIndexWorker(mockRepo, mockIndexer, testLogger())
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch pending jobs")
}

func TestGenerationRelay_ProcessJobs(t *testing.T) {
	relayer := new(MockRelayer)
	relayer.On("RelayPending", mock.Anything, time.Minute).Return(3, nil).Once()
	relayer.On("RelayPending", mock.Anything, time.Minute).Return(0, errors.New("db down")).Once()

	relay := NewGenerationRelay(relayer, time.Minute, testLogger())

	assert.NoError(t, relay.ProcessJobs(context.Background()))
	assert.Error(t, relay.ProcessJobs(context.Background()))
	relayer.AssertExpectations(t)
}
