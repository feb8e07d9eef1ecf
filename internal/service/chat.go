package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// SessionIssuer signs and verifies widget visitor sessions.
type SessionIssuer interface {
	Issue(botID, workspaceID string) (string, *domain.WidgetSession, error)
	Verify(token string) (*domain.WidgetSession, error)
}

// RateLimiter admits or rejects one event for a key.
type RateLimiter interface {
	Allow(key string) bool
}

// Retriever finds knowledge chunks relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, kbIDs []string, query string, limit int) ([]*domain.SearchHit, error)
}

const (
	chatContextChunks   = 4
	maxHistoryItemChars = 4000
)

// PublicWidget is what an embedding page needs to render the widget.
type PublicWidget struct {
	BotID   string              `json:"bot_id"`
	BotName string              `json:"bot_name"`
	Version int                 `json:"version"`
	Config  domain.WidgetConfig `json:"config"`
}

// ChatSession is a freshly issued visitor session.
type ChatSession struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChatReply is the bot's answer to one visitor message.
type ChatReply struct {
	Reply   string              `json:"reply"`
	Sources []*domain.SearchHit `json:"sources"`
}

// ChatService serves anonymous visitors of published widgets.
type ChatService struct {
	bots      BotRepository
	widgets   WidgetRepository
	sessions  SessionIssuer
	limiter   RateLimiter
	quota     QuotaGuard
	retriever Retriever
	model     LanguageModel
	log       logrus.FieldLogger
}

func NewChatService(
	bots BotRepository,
	widgets WidgetRepository,
	sessions SessionIssuer,
	limiter RateLimiter,
	quota QuotaGuard,
	retriever Retriever,
	model LanguageModel,
	log logrus.FieldLogger,
) *ChatService {
	return &ChatService{
		bots:      bots,
		widgets:   widgets,
		sessions:  sessions,
		limiter:   limiter,
		quota:     quota,
		retriever: retriever,
		model:     model,
		log:       log.WithField("component", "chat"),
	}
}

// GetWidget returns the published widget of an active bot.
func (s *ChatService) GetWidget(ctx context.Context, botID string) (*PublicWidget, error) {
	bot, v, err := s.published(ctx, botID)
	if err != nil {
		return nil, err
	}
	return &PublicWidget{BotID: bot.ID, BotName: bot.Name, Version: v.Version, Config: v.Config}, nil
}

// StartSession issues a visitor session when origin is allowed by the published widget.
func (s *ChatService) StartSession(ctx context.Context, botID, origin string) (*ChatSession, error) {
	if s.sessions == nil {
		return nil, domain.ErrInvalidSession
	}
	bot, v, err := s.published(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !v.Config.AllowsOrigin(origin) {
		return nil, domain.ErrOriginForbidden
	}

	token, sess, err := s.sessions.Issue(bot.ID, bot.WorkspaceID)
	if err != nil {
		return nil, err
	}
	return &ChatSession{Token: token, SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt}, nil
}

// SendMessage answers a visitor message. History is supplied by the client;
// only the most recent turns are forwarded to the model.
func (s *ChatService) SendMessage(ctx context.Context, botID, token, message string, history []domain.ChatMessage) (*ChatReply, error) {
	if s.sessions == nil {
		return nil, domain.ErrInvalidSession
	}
	sess, err := s.sessions.Verify(token)
	if err != nil {
		return nil, domain.ErrInvalidSession
	}
	if sess.BotID != botID {
		return nil, domain.ErrInvalidSession
	}
	if !s.limiter.Allow(sess.SessionID) {
		return nil, domain.ErrRateLimited
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, domain.ValidationError("message is required")
	}
	if len([]rune(message)) > domain.MaxChatMessageChars {
		return nil, domain.ValidationError("message must be at most %d characters", domain.MaxChatMessageChars)
	}
	if s.model == nil {
		return nil, domain.ErrModelNotConfigured
	}

	bot, _, err := s.published(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.WorkspaceID != sess.WorkspaceID {
		return nil, domain.ErrInvalidSession
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.SendMessage", telemetry.SpanAttributes{
		WorkspaceID: bot.WorkspaceID,
		ResourceID:  bot.ID,
		Operation:   "chat",
	})
	defer span.End()

	if err := s.quota.Meter(ctx, bot.WorkspaceID, domain.MetricChatMessages, 1); err != nil {
		return nil, err
	}

	hits := s.retrieve(ctx, bot, message)
	res, err := s.model.Complete(ctx, domain.CompletionRequest{
		Model:       bot.Model,
		Messages:    buildChatMessages(bot.SystemPrompt, hits, history, message),
		Temperature: bot.Temperature,
		MaxTokens:   bot.MaxTokens,
	})
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return &ChatReply{Reply: res.Content, Sources: hits}, nil
}

func (s *ChatService) published(ctx context.Context, botID string) (*domain.Bot, *domain.WidgetVersion, error) {
	bot, err := s.bots.Get(ctx, botID)
	if err != nil {
		return nil, nil, err
	}
	if !bot.IsActive() {
		return nil, nil, domain.ErrNoPublishedWidget
	}
	v, err := s.widgets.GetPublished(ctx, bot.ID)
	if err != nil {
		return nil, nil, err
	}
	return bot, v, nil
}

func (s *ChatService) retrieve(ctx context.Context, bot *domain.Bot, query string) []*domain.SearchHit {
	if s.retriever == nil || len(bot.KnowledgeBaseIDs) == 0 {
		return []*domain.SearchHit{}
	}
	hits, err := s.retriever.Retrieve(ctx, bot.KnowledgeBaseIDs, query, chatContextChunks)
	if err != nil {
		s.log.WithError(err).WithField("bot_id", bot.ID).Warn("knowledge retrieval failed, answering without context")
		return []*domain.SearchHit{}
	}
	return hits
}

func buildChatMessages(systemPrompt string, hits []*domain.SearchHit, history []domain.ChatMessage, message string) []domain.ChatMessage {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(systemPrompt))
	if len(hits) > 0 {
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString("Answer using the following context when it is relevant.\n")
		for i, h := range hits {
			fmt.Fprintf(&system, "\n[%d] %s\n%s\n", i+1, h.Title, h.Content)
		}
	}

	msgs := make([]domain.ChatMessage, 0, domain.MaxChatHistory+2)
	if system.Len() > 0 {
		msgs = append(msgs, domain.ChatMessage{Role: domain.ChatRoleSystem, Content: system.String()})
	}

	valid := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role != domain.ChatRoleUser && m.Role != domain.ChatRoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if r := []rune(content); len(r) > maxHistoryItemChars {
			content = string(r[:maxHistoryItemChars])
		}
		valid = append(valid, domain.ChatMessage{Role: m.Role, Content: content})
	}
	if len(valid) > domain.MaxChatHistory {
		valid = valid[len(valid)-domain.MaxChatHistory:]
	}
	msgs = append(msgs, valid...)
	return append(msgs, domain.ChatMessage{Role: domain.ChatRoleUser, Content: message})
}
