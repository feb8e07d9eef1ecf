package domain

import (
	"strings"
	"time"
)

// BotStatus represents whether a bot answers public traffic
type BotStatus string

const (
	BotStatusActive   BotStatus = "active"
	BotStatusDisabled BotStatus = "disabled"
)

const (
	DefaultBotModel       = "gpt-4o-mini"
	DefaultBotTemperature = 0.7
	DefaultBotMaxTokens   = 1024
	MaxBotMaxTokens       = 32768
	MaxBotTemperature     = 2.0
	maxSystemPromptChars  = 20000
)

// Bot is a configurable conversational agent.
type Bot struct {
	ID               string
	WorkspaceID      string
	Name             string
	Description      string
	SystemPrompt     string
	Model            string
	Temperature      float32
	MaxTokens        int
	KnowledgeBaseIDs []string
	Status           BotStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive reports whether the bot serves public chat.
func (b *Bot) IsActive() bool {
	return b.Status == BotStatusActive
}

// ApplyDefaults fills zero-valued model parameters.
func (b *Bot) ApplyDefaults() {
	if b.Model == "" {
		b.Model = DefaultBotModel
	}
	if b.MaxTokens == 0 {
		b.MaxTokens = DefaultBotMaxTokens
	}
	if b.Status == "" {
		b.Status = BotStatusActive
	}
	if b.KnowledgeBaseIDs == nil {
		b.KnowledgeBaseIDs = []string{}
	}
}

// ValidateBot validates a Bot instance
func ValidateBot(b *Bot) error {
	if b == nil {
		return ValidationError("bot cannot be nil")
	}
	if b.ID == "" {
		return ValidationError("bot ID is required")
	}
	if b.WorkspaceID == "" {
		return ValidationError("bot WorkspaceID is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return ValidationError("bot name is required")
	}
	if len(b.Name) > 120 {
		return ValidationError("bot name must be at most 120 characters")
	}
	if len(b.SystemPrompt) > maxSystemPromptChars {
		return ValidationError("system prompt must be at most %d characters", maxSystemPromptChars)
	}
	if b.Model == "" {
		return ValidationError("bot model is required")
	}
	if b.Temperature < 0 || b.Temperature > MaxBotTemperature {
		return ValidationError("temperature must be between 0 and %.0f", MaxBotTemperature)
	}
	if b.MaxTokens < 1 || b.MaxTokens > MaxBotMaxTokens {
		return ValidationError("max_tokens must be between 1 and %d", MaxBotMaxTokens)
	}
	if b.Status != BotStatusActive && b.Status != BotStatusDisabled {
		return ValidationError("bot status is invalid: %s", b.Status)
	}
	return nil
}
