//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	embedding, err := client.GenerateEmbedding(context.Background(), "Refunds are processed within 5 business days.")

	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)
}

func TestIntegration_Complete_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	res, err := client.Complete(context.Background(), domain.CompletionRequest{
		Messages:  []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "Reply with the single word: pong"}},
		MaxTokens: 10,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, res.Content)
}
