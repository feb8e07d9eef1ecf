package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/botstudio/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	text := "Our support hours are 9 to 5."
	expectedEmbedding := make([]float32, 1536)
	for i := range expectedEmbedding {
		expectedEmbedding[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, text).Return(expectedEmbedding, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, 1536)
	assert.Equal(t, expectedEmbedding, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	embedding, err := client.GenerateEmbedding(context.Background(), "")

	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, "Test text").Return(nil, errors.New("API rate limit exceeded"))

	embedding, err := client.GenerateEmbedding(ctx, "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI, dimensions: DefaultEmbeddingDimensions}

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, "Test text").Return(make([]float32, 512), nil)

	embedding, err := client.GenerateEmbedding(ctx, "Test text")

	assert.Nil(t, embedding)
	assert.Equal(t, ErrWrongDimensions, err)
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key"})

	assert.NotNil(t, client.api)
	assert.NotNil(t, client.chat)
	assert.Equal(t, DefaultEmbeddingDimensions, client.dimensions)
	assert.Equal(t, DefaultChatModel, client.chatModel)
}

func TestClient_Complete_Success(t *testing.T) {
	mockChat := new(MockChatAPI)
	client := &Client{chat: mockChat, chatModel: "gpt-4o-mini"}

	ctx := context.Background()
	mockChat.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "gpt-4o" &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[1].Content == "hello" &&
			req.MaxTokens == 256
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hi there"}}},
		Usage:   openai.Usage{PromptTokens: 12, CompletionTokens: 3},
	}, nil)

	res, err := client.Complete(ctx, domain.CompletionRequest{
		Model: "gpt-4o",
		Messages: []domain.ChatMessage{
			{Role: domain.ChatRoleSystem, Content: "be brief"},
			{Role: domain.ChatRoleUser, Content: "hello"},
		},
		Temperature: 0.2,
		MaxTokens:   256,
	})

	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Content)
	assert.Equal(t, 12, res.PromptTokens)
	assert.Equal(t, 3, res.CompletionTokens)
	mockChat.AssertExpectations(t)
}

func TestClient_Complete_DefaultModel(t *testing.T) {
	mockChat := new(MockChatAPI)
	client := &Client{chat: mockChat, chatModel: "gpt-4o-mini"}

	ctx := context.Background()
	mockChat.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "gpt-4o-mini"
	})).Return(openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}, nil)

	res, err := client.Complete(ctx, domain.CompletionRequest{
		Messages: []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "ping"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
}

func TestClient_Complete_Errors(t *testing.T) {
	mockChat := new(MockChatAPI)
	client := &Client{chat: mockChat, chatModel: "gpt-4o-mini"}
	ctx := context.Background()

	_, err := client.Complete(ctx, domain.CompletionRequest{})
	assert.Equal(t, ErrEmptyText, err)

	mockChat.On("CreateChatCompletion", ctx, mock.Anything).Return(openai.ChatCompletionResponse{}, nil).Once()
	_, err = client.Complete(ctx, domain.CompletionRequest{Messages: []domain.ChatMessage{{Role: "user", Content: "x"}}})
	assert.Equal(t, ErrNoChoices, err)

	mockChat.On("CreateChatCompletion", ctx, mock.Anything).Return(openai.ChatCompletionResponse{}, errors.New("boom")).Once()
	_, err = client.Complete(ctx, domain.CompletionRequest{Messages: []domain.ChatMessage{{Role: "user", Content: "x"}}})
	assert.ErrorContains(t, err, "failed to create completion")
}
