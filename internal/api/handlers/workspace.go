package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WorkspaceService interface {
	CreateWorkspaceWithKey(ctx context.Context, name, ownerID, keyName string) (*domain.Workspace, string, error)
	GetWorkspace(ctx context.Context, p domain.Principal) (*domain.Workspace, error)
	RenameWorkspace(ctx context.Context, p domain.Principal, name string) (*domain.Workspace, error)
	ListMembers(ctx context.Context, p domain.Principal) ([]*domain.WorkspaceMember, error)
	AddMember(ctx context.Context, p domain.Principal, userID string, role domain.Role) (*domain.WorkspaceMember, error)
	UpdateMemberRole(ctx context.Context, p domain.Principal, userID string, role domain.Role) (*domain.WorkspaceMember, error)
	RemoveMember(ctx context.Context, p domain.Principal, userID string) error
}

type WorkspaceHandler struct {
	svc WorkspaceService
}

func NewWorkspaceHandler(svc WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc}
}

type CreateWorkspaceRequest struct {
	Name    string `json:"name"`
	KeyName string `json:"key_name"`
}

type CreateWorkspaceResponse struct {
	Workspace *WorkspaceResponse `json:"workspace"`
	Token     string             `json:"token"`
}

type RenameWorkspaceRequest struct {
	Name string `json:"name"`
}

type MemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type WorkspaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type MemberResponse struct {
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

func workspaceToResponse(ws *domain.Workspace) *WorkspaceResponse {
	return &WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		Slug:      ws.Slug,
		CreatedAt: formatTime(ws.CreatedAt),
		UpdatedAt: formatTime(ws.UpdatedAt),
	}
}

func memberToResponse(m *domain.WorkspaceMember) *MemberResponse {
	return &MemberResponse{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Role:        string(m.Role),
		CreatedAt:   formatTime(m.CreatedAt),
	}
}

// Create makes a new workspace owned by the calling user and returns a key scoped to it.
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CreateWorkspaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	ws, token, err := h.svc.CreateWorkspaceWithKey(r.Context(), req.Name, p.UserID, req.KeyName)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, &CreateWorkspaceResponse{Workspace: workspaceToResponse(ws), Token: token})
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	ws, err := h.svc.GetWorkspace(r.Context(), p)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, workspaceToResponse(ws))
}

func (h *WorkspaceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req RenameWorkspaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ws, err := h.svc.RenameWorkspace(r.Context(), p, req.Name)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, workspaceToResponse(ws))
}

func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	members, err := h.svc.ListMembers(r.Context(), p)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	out := make([]*MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberToResponse(m))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		api.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	role := domain.Role(req.Role)
	if req.Role == "" {
		role = domain.RoleMember
	}

	m, err := h.svc.AddMember(r.Context(), p, req.UserID, role)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, memberToResponse(m))
}

func (h *WorkspaceHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		api.Error(w, http.StatusBadRequest, "role is required")
		return
	}

	m, err := h.svc.UpdateMemberRole(r.Context(), p, chi.URLParam(r, "userID"), domain.Role(req.Role))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, memberToResponse(m))
}

func (h *WorkspaceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.RemoveMember(r.Context(), p, chi.URLParam(r, "userID")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
