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

type CatalogService interface {
	ListTools(ctx context.Context) ([]*domain.CreationTool, error)
	ListTemplates(ctx context.Context, p domain.Principal, toolID string, in service.ListInput) (*pagination.Page[*domain.Template], error)
	GetTemplate(ctx context.Context, p domain.Principal, id string) (*domain.Template, error)
	CreateTemplate(ctx context.Context, p domain.Principal, in service.TemplateInput) (*domain.Template, error)
	UpdateTemplate(ctx context.Context, p domain.Principal, id string, in service.TemplateInput) (*domain.Template, error)
	ArchiveTemplate(ctx context.Context, p domain.Principal, id string) error
}

type CatalogHandler struct {
	svc CatalogService
}

func NewCatalogHandler(svc CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

type TemplateRequest struct {
	ToolID         string                 `json:"tool_id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	PromptTemplate string                 `json:"prompt_template"`
	Fields         []domain.TemplateField `json:"fields"`
	Model          string                 `json:"model"`
}

type ToolResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	SortOrder   int    `json:"sort_order"`
}

type TemplateResponse struct {
	ID             string                 `json:"id"`
	ToolID         string                 `json:"tool_id"`
	WorkspaceID    string                 `json:"workspace_id,omitempty"`
	Global         bool                   `json:"global"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	PromptTemplate string                 `json:"prompt_template"`
	Fields         []domain.TemplateField `json:"fields"`
	Model          string                 `json:"model,omitempty"`
	Status         string                 `json:"status"`
	CreatedAt      string                 `json:"created_at"`
	UpdatedAt      string                 `json:"updated_at"`
}

func toolToResponse(t *domain.CreationTool) *ToolResponse {
	return &ToolResponse{
		ID:          t.ID,
		Slug:        t.Slug,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Icon:        t.Icon,
		SortOrder:   t.SortOrder,
	}
}

func templateToResponse(t *domain.Template) *TemplateResponse {
	fields := t.Fields
	if fields == nil {
		fields = []domain.TemplateField{}
	}
	return &TemplateResponse{
		ID:             t.ID,
		ToolID:         t.ToolID,
		WorkspaceID:    t.WorkspaceID,
		Global:         t.IsGlobal(),
		Name:           t.Name,
		Description:    t.Description,
		PromptTemplate: t.PromptTemplate,
		Fields:         fields,
		Model:          t.Model,
		Status:         string(t.Status),
		CreatedAt:      formatTime(t.CreatedAt),
		UpdatedAt:      formatTime(t.UpdatedAt),
	}
}

func (req TemplateRequest) toInput() service.TemplateInput {
	return service.TemplateInput{
		ToolID:         req.ToolID,
		Name:           req.Name,
		Description:    req.Description,
		PromptTemplate: req.PromptTemplate,
		Fields:         req.Fields,
		Model:          req.Model,
	}
}

func (h *CatalogHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.svc.ListTools(r.Context())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]*ToolResponse, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolToResponse(t))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *CatalogHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	in, ok := listInput(w, r)
	if !ok {
		return
	}

	page, err := h.svc.ListTemplates(r.Context(), p, r.URL.Query().Get("tool_id"), in)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, pageResponse(page, templateToResponse))
}

func (h *CatalogHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	t, err := h.svc.GetTemplate(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, templateToResponse(t))
}

func (h *CatalogHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ToolID == "" {
		api.Error(w, http.StatusBadRequest, "tool_id is required")
		return
	}

	t, err := h.svc.CreateTemplate(r.Context(), p, req.toInput())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, templateToResponse(t))
}

func (h *CatalogHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.svc.UpdateTemplate(r.Context(), p, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, templateToResponse(t))
}

// ArchiveTemplate backs DELETE /templates/{id}; templates are archived, never removed.
func (h *CatalogHandler) ArchiveTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.ArchiveTemplate(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
