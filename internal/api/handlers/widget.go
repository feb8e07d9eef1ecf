package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WidgetService interface {
	CreateDraft(ctx context.Context, p domain.Principal, botID string, cfg *domain.WidgetConfig) (*domain.WidgetVersion, error)
	UpdateDraft(ctx context.Context, p domain.Principal, botID, id string, cfg domain.WidgetConfig) (*domain.WidgetVersion, error)
	Publish(ctx context.Context, p domain.Principal, botID, id string) (*domain.WidgetVersion, error)
	Archive(ctx context.Context, p domain.Principal, botID, id string) (*domain.WidgetVersion, error)
	Get(ctx context.Context, p domain.Principal, botID, id string) (*domain.WidgetVersion, error)
	List(ctx context.Context, p domain.Principal, botID string) ([]*domain.WidgetVersion, error)
}

type WidgetHandler struct {
	svc WidgetService
}

func NewWidgetHandler(svc WidgetService) *WidgetHandler {
	return &WidgetHandler{svc: svc}
}

type WidgetVersionResponse struct {
	ID          string              `json:"id"`
	BotID       string              `json:"bot_id"`
	Version     int                 `json:"version"`
	Status      string              `json:"status"`
	Config      domain.WidgetConfig `json:"config"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
	PublishedAt *string             `json:"published_at"`
	ArchivedAt  *string             `json:"archived_at"`
}

func widgetToResponse(v *domain.WidgetVersion) *WidgetVersionResponse {
	cfg := v.Config
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{}
	}
	return &WidgetVersionResponse{
		ID:          v.ID,
		BotID:       v.BotID,
		Version:     v.Version,
		Status:      string(v.Status),
		Config:      cfg,
		CreatedAt:   formatTime(v.CreatedAt),
		UpdatedAt:   formatTime(v.UpdatedAt),
		PublishedAt: formatTimePtr(v.PublishedAt),
		ArchivedAt:  formatTimePtr(v.ArchivedAt),
	}
}

// Create starts a new draft. An empty body starts from the default configuration.
func (h *WidgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var cfg *domain.WidgetConfig
	if r.ContentLength != 0 {
		var body domain.WidgetConfig
		if !decodeJSON(w, r, &body) {
			return
		}
		cfg = &body
	}

	v, err := h.svc.CreateDraft(r.Context(), p, chi.URLParam(r, "id"), cfg)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, widgetToResponse(v))
}

func (h *WidgetHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	versions, err := h.svc.List(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]*WidgetVersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, widgetToResponse(v))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *WidgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	v, err := h.svc.Get(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, widgetToResponse(v))
}

func (h *WidgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var cfg domain.WidgetConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}

	v, err := h.svc.UpdateDraft(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "versionID"), cfg)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, widgetToResponse(v))
}

func (h *WidgetHandler) Publish(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	v, err := h.svc.Publish(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, widgetToResponse(v))
}

func (h *WidgetHandler) Archive(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	v, err := h.svc.Archive(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, widgetToResponse(v))
}
