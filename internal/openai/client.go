package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/botstudio/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions matches the vector(1536) column of document chunks
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is used when neither the bot nor the template names a model
	DefaultChatModel = openai.GPT4oMini
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions, expected 1536")
	// ErrNoChoices is returned when a completion comes back empty
	ErrNoChoices = errors.New("completion returned no choices")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// ChatAPI is the subset of the OpenAI client used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api        EmbeddingAPI
	chat       ChatAPI
	dimensions int
	chatModel  string
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: client,
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	raw := openai.NewClientWithConfig(oc)

	return &Client{
		api:        NewOpenAIAdapter(raw, cfg.EmbeddingModel),
		chat:       raw,
		dimensions: dimensions,
		chatModel:  chatModel,
	}
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	expected := c.dimensions
	if expected <= 0 {
		expected = DefaultEmbeddingDimensions
	}
	if len(embedding) != expected {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// Complete runs a chat completion. An empty model falls back to the configured chat model.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyText
	}

	model := req.Model
	if model == "" {
		model = c.chatModel
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	return &domain.CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
