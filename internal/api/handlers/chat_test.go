package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) GetWidget(ctx context.Context, botID string) (*service.PublicWidget, error) {
	args := m.Called(ctx, botID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PublicWidget), args.Error(1)
}

func (m *MockChatService) StartSession(ctx context.Context, botID, origin string) (*service.ChatSession, error) {
	args := m.Called(ctx, botID, origin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatSession), args.Error(1)
}

func (m *MockChatService) SendMessage(ctx context.Context, botID, token, message string, history []domain.ChatMessage) (*service.ChatReply, error) {
	args := m.Called(ctx, botID, token, message, history)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatReply), args.Error(1)
}

func publicRequest(method, target string, body any) *http.Request {
	return newRequest(method, target, body, map[string]string{"botID": "bot-1"})
}

func TestChatHandler_GetWidgetUnpublished(t *testing.T) {
	svc := new(MockChatService)
	h := NewChatHandler(svc)
	svc.On("GetWidget", mock.Anything, "bot-1").Return(nil, domain.ErrNoPublishedWidget)

	w := httptest.NewRecorder()
	h.GetWidget(w, publicRequest(http.MethodGet, "/public/bots/bot-1/widget", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandler_StartSession(t *testing.T) {
	svc := new(MockChatService)
	h := NewChatHandler(svc)

	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.On("StartSession", mock.Anything, "bot-1", "https://shop.example.com").
		Return(&service.ChatSession{Token: "tok", SessionID: "sess-1", ExpiresAt: expires}, nil)

	req := publicRequest(http.MethodPost, "/public/bots/bot-1/sessions", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	w := httptest.NewRecorder()
	h.StartSession(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp service.ChatSession
	decodeData(t, w, &resp)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "sess-1", resp.SessionID)
}

func TestChatHandler_StartSessionForbiddenOrigin(t *testing.T) {
	svc := new(MockChatService)
	h := NewChatHandler(svc)
	svc.On("StartSession", mock.Anything, "bot-1", "https://evil.example.com").Return(nil, domain.ErrOriginForbidden)

	req := publicRequest(http.MethodPost, "/public/bots/bot-1/sessions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.StartSession(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatHandler_SendMessage(t *testing.T) {
	svc := new(MockChatService)
	h := NewChatHandler(svc)

	history := []domain.ChatMessage{{Role: domain.ChatRoleUser, Content: "hi"}, {Role: domain.ChatRoleAssistant, Content: "hello"}}
	svc.On("SendMessage", mock.Anything, "bot-1", "tok", "what are your hours?", history).
		Return(&service.ChatReply{Reply: "9 to 5"}, nil)

	req := publicRequest(http.MethodPost, "/public/bots/bot-1/messages", map[string]any{
		"message": "what are your hours?",
		"history": history,
	})
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	h.SendMessage(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"reply":"9 to 5","sources":[]}}`, w.Body.String())
}

func TestChatHandler_SendMessageErrors(t *testing.T) {
	tests := []struct {
		name       string
		auth       string
		err        error
		wantStatus int
	}{
		{"missing token", "", nil, http.StatusUnauthorized},
		{"invalid session", "Bearer tok", domain.ErrInvalidSession, http.StatusUnauthorized},
		{"rate limited", "Bearer tok", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"quota exceeded", "Bearer tok", domain.ErrQuotaExceeded, http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatService)
			h := NewChatHandler(svc)
			if tt.err != nil {
				svc.On("SendMessage", mock.Anything, "bot-1", "tok", "hello", mock.Anything).Return(nil, tt.err)
			}

			req := publicRequest(http.MethodPost, "/public/bots/bot-1/messages", `{"message":"hello"}`)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			h.SendMessage(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
