package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/api/middleware"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/go-chi/chi/v5"
)

type ChatService interface {
	GetWidget(ctx context.Context, botID string) (*service.PublicWidget, error)
	StartSession(ctx context.Context, botID, origin string) (*service.ChatSession, error)
	SendMessage(ctx context.Context, botID, token, message string, history []domain.ChatMessage) (*service.ChatReply, error)
}

// ChatHandler serves the unauthenticated widget API.
type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type SendMessageRequest struct {
	Message string               `json:"message"`
	History []domain.ChatMessage `json:"history"`
}

func (h *ChatHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	widget, err := h.svc.GetWidget(r.Context(), chi.URLParam(r, "botID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, widget)
}

func (h *ChatHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.StartSession(r.Context(), chi.URLParam(r, "botID"), r.Header.Get("Origin"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, sess)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		api.Error(w, http.StatusUnauthorized, "missing session token")
		return
	}

	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := h.svc.SendMessage(r.Context(), chi.URLParam(r, "botID"), token, req.Message, req.History)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	if reply.Sources == nil {
		reply.Sources = []*domain.SearchHit{}
	}
	api.Success(w, http.StatusOK, reply)
}
