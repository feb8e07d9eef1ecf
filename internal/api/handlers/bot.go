package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/go-chi/chi/v5"
)

type BotService interface {
	Create(ctx context.Context, p domain.Principal, in service.BotInput) (*domain.Bot, error)
	Get(ctx context.Context, p domain.Principal, id string) (*domain.Bot, error)
	List(ctx context.Context, p domain.Principal, in service.ListInput) (*pagination.Page[*domain.Bot], error)
	Update(ctx context.Context, p domain.Principal, id string, in service.BotInput) (*domain.Bot, error)
	Delete(ctx context.Context, p domain.Principal, id string) error
}

type BotHandler struct {
	svc BotService
}

func NewBotHandler(svc BotService) *BotHandler {
	return &BotHandler{svc: svc}
}

type BotRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SystemPrompt     string   `json:"system_prompt"`
	Model            string   `json:"model"`
	Temperature      *float32 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	KnowledgeBaseIDs []string `json:"knowledge_base_ids"`
	Status           string   `json:"status"`
}

type BotResponse struct {
	ID               string   `json:"id"`
	WorkspaceID      string   `json:"workspace_id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SystemPrompt     string   `json:"system_prompt"`
	Model            string   `json:"model"`
	Temperature      float32  `json:"temperature"`
	MaxTokens        int      `json:"max_tokens"`
	KnowledgeBaseIDs []string `json:"knowledge_base_ids"`
	Status           string   `json:"status"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

func botToResponse(b *domain.Bot) *BotResponse {
	kbIDs := b.KnowledgeBaseIDs
	if kbIDs == nil {
		kbIDs = []string{}
	}
	return &BotResponse{
		ID:               b.ID,
		WorkspaceID:      b.WorkspaceID,
		Name:             b.Name,
		Description:      b.Description,
		SystemPrompt:     b.SystemPrompt,
		Model:            b.Model,
		Temperature:      b.Temperature,
		MaxTokens:        b.MaxTokens,
		KnowledgeBaseIDs: kbIDs,
		Status:           string(b.Status),
		CreatedAt:        formatTime(b.CreatedAt),
		UpdatedAt:        formatTime(b.UpdatedAt),
	}
}

func (req BotRequest) toInput() service.BotInput {
	return service.BotInput{
		Name:             req.Name,
		Description:      req.Description,
		SystemPrompt:     req.SystemPrompt,
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		KnowledgeBaseIDs: req.KnowledgeBaseIDs,
		Status:           domain.BotStatus(req.Status),
	}
}

func (h *BotHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req BotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	bot, err := h.svc.Create(r.Context(), p, req.toInput())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, botToResponse(bot))
}

func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	bot, err := h.svc.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, botToResponse(bot))
}

func (h *BotHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	in, ok := listInput(w, r)
	if !ok {
		return
	}

	page, err := h.svc.List(r.Context(), p, in)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, pageResponse(page, botToResponse))
}

func (h *BotHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req BotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	bot, err := h.svc.Update(r.Context(), p, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, botToResponse(bot))
}

func (h *BotHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
