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

type GenerationService interface {
	Create(ctx context.Context, p domain.Principal, templateID string, inputs map[string]any) (*domain.GenerationJob, error)
	Get(ctx context.Context, p domain.Principal, id string) (*domain.GenerationJob, error)
	List(ctx context.Context, p domain.Principal, status domain.GenerationStatus, in service.ListInput) (*pagination.Page[*domain.GenerationJob], error)
	Cancel(ctx context.Context, p domain.Principal, id string) (*domain.GenerationJob, error)
}

type GenerationHandler struct {
	svc GenerationService
}

func NewGenerationHandler(svc GenerationService) *GenerationHandler {
	return &GenerationHandler{svc: svc}
}

type CreateGenerationRequest struct {
	TemplateID string         `json:"template_id"`
	Inputs     map[string]any `json:"inputs"`
}

type GenerationJobResponse struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspace_id"`
	UserID      string            `json:"user_id"`
	TemplateID  string            `json:"template_id"`
	Inputs      map[string]string `json:"inputs"`
	Model       string            `json:"model"`
	Status      string            `json:"status"`
	Output      string            `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	Attempts    int               `json:"attempts"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	StartedAt   *string           `json:"started_at"`
	CompletedAt *string           `json:"completed_at"`
}

func generationToResponse(j *domain.GenerationJob) *GenerationJobResponse {
	inputs := j.Inputs
	if inputs == nil {
		inputs = map[string]string{}
	}
	return &GenerationJobResponse{
		ID:          j.ID,
		WorkspaceID: j.WorkspaceID,
		UserID:      j.UserID,
		TemplateID:  j.TemplateID,
		Inputs:      inputs,
		Model:       j.Model,
		Status:      string(j.Status),
		Output:      j.Output,
		Error:       j.Error,
		Attempts:    j.Attempts,
		CreatedAt:   formatTime(j.CreatedAt),
		UpdatedAt:   formatTime(j.UpdatedAt),
		StartedAt:   formatTimePtr(j.StartedAt),
		CompletedAt: formatTimePtr(j.CompletedAt),
	}
}

func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateGenerationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		api.Error(w, http.StatusBadRequest, "template_id is required")
		return
	}

	job, err := h.svc.Create(r.Context(), p, req.TemplateID, req.Inputs)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusAccepted, generationToResponse(job))
}

func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, generationToResponse(job))
}

func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	in, ok := listInput(w, r)
	if !ok {
		return
	}

	status := domain.GenerationStatus(r.URL.Query().Get("status"))
	page, err := h.svc.List(r.Context(), p, status, in)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, pageResponse(page, generationToResponse))
}

func (h *GenerationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Cancel(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, generationToResponse(job))
}
