package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/go-chi/chi/v5"
)

type APIKeyService interface {
	CreateAPIKey(ctx context.Context, workspaceID, userID, name string) (*domain.APIKey, string, error)
	ListAPIKeys(ctx context.Context, p domain.Principal) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, p domain.Principal, keyID string) error
}

type APIKeyHandler struct {
	svc APIKeyService
}

func NewAPIKeyHandler(svc APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{svc: svc}
}

type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

type APIKeyResponse struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspace_id"`
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Token       string  `json:"token,omitempty"`
	CreatedAt   string  `json:"created_at"`
	LastUsedAt  *string `json:"last_used_at"`
	RevokedAt   *string `json:"revoked_at"`
}

func apiKeyToResponse(k *domain.APIKey) *APIKeyResponse {
	return &APIKeyResponse{
		ID:          k.ID,
		WorkspaceID: k.WorkspaceID,
		UserID:      k.UserID,
		Name:        k.Name,
		CreatedAt:   formatTime(k.CreatedAt),
		LastUsedAt:  formatTimePtr(k.LastUsedAt),
		RevokedAt:   formatTimePtr(k.RevokedAt),
	}
}

// Create issues a key for the caller in the caller's workspace. The token is only returned here.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	key, token, err := h.svc.CreateAPIKey(r.Context(), p.WorkspaceID, p.UserID, req.Name)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	resp := apiKeyToResponse(key)
	resp.Token = token
	api.Success(w, http.StatusCreated, resp)
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), p)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]*APIKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyToResponse(k))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.RevokeAPIKey(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
