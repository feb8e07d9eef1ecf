package domain

import "time"

// Chat message roles
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// MaxChatHistory is how many prior messages are sent to the model with a new message.
const MaxChatHistory = 20

// MaxChatMessageChars bounds a single visitor message.
const MaxChatMessageChars = 4000

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a model call: a conversation plus sampling parameters.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
}

// CompletionResult is the model's reply.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// WidgetSession identifies an anonymous visitor chatting with one bot.
type WidgetSession struct {
	SessionID   string
	BotID       string
	WorkspaceID string
	ExpiresAt   time.Time
}
