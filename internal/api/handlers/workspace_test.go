package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWorkspaceService struct {
	mock.Mock
}

func (m *MockWorkspaceService) CreateWorkspaceWithKey(ctx context.Context, name, ownerID, keyName string) (*domain.Workspace, string, error) {
	args := m.Called(ctx, name, ownerID, keyName)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*domain.Workspace), args.String(1), args.Error(2)
}

func (m *MockWorkspaceService) GetWorkspace(ctx context.Context, p domain.Principal) (*domain.Workspace, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceService) RenameWorkspace(ctx context.Context, p domain.Principal, name string) (*domain.Workspace, error) {
	args := m.Called(ctx, p, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

func (m *MockWorkspaceService) ListMembers(ctx context.Context, p domain.Principal) ([]*domain.WorkspaceMember, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.WorkspaceMember), args.Error(1)
}

func (m *MockWorkspaceService) AddMember(ctx context.Context, p domain.Principal, userID string, role domain.Role) (*domain.WorkspaceMember, error) {
	args := m.Called(ctx, p, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkspaceMember), args.Error(1)
}

func (m *MockWorkspaceService) UpdateMemberRole(ctx context.Context, p domain.Principal, userID string, role domain.Role) (*domain.WorkspaceMember, error) {
	args := m.Called(ctx, p, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkspaceMember), args.Error(1)
}

func (m *MockWorkspaceService) RemoveMember(ctx context.Context, p domain.Principal, userID string) error {
	return m.Called(ctx, p, userID).Error(0)
}

func TestWorkspaceHandler_CreateReturnsTokenOnce(t *testing.T) {
	svc := new(MockWorkspaceService)
	h := NewWorkspaceHandler(svc)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ws := &domain.Workspace{ID: "ws-2", Name: "Acme", Slug: "acme", CreatedAt: now, UpdatedAt: now}
	svc.On("CreateWorkspaceWithKey", mock.Anything, "Acme", "user-1", "ci").Return(ws, "bst_secret", nil)

	w := httptest.NewRecorder()
	h.Create(w, newRequest(http.MethodPost, "/workspaces", CreateWorkspaceRequest{Name: "Acme", KeyName: "ci"}, nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp CreateWorkspaceResponse
	decodeData(t, w, &resp)
	require.NotNil(t, resp.Workspace)
	assert.Equal(t, "acme", resp.Workspace.Slug)
	assert.Equal(t, "bst_secret", resp.Token)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.Workspace.CreatedAt)
}

func TestWorkspaceHandler_AddMemberDefaultsRole(t *testing.T) {
	svc := new(MockWorkspaceService)
	h := NewWorkspaceHandler(svc)
	svc.On("AddMember", mock.Anything, testPrincipal, "user-2", domain.RoleMember).Return(nil, domain.ErrForbidden)

	w := httptest.NewRecorder()
	h.AddMember(w, newRequest(http.MethodPost, "/workspace/members", MemberRequest{UserID: "user-2"}, nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertExpectations(t)
}

func TestWorkspaceHandler_UpdateMemberRequiresRole(t *testing.T) {
	h := NewWorkspaceHandler(new(MockWorkspaceService))

	w := httptest.NewRecorder()
	h.UpdateMember(w, newRequest(http.MethodPatch, "/workspace/members/user-2", MemberRequest{}, map[string]string{"userID": "user-2"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkspaceHandler_RemoveLastOwner(t *testing.T) {
	svc := new(MockWorkspaceService)
	h := NewWorkspaceHandler(svc)
	svc.On("RemoveMember", mock.Anything, testPrincipal, "user-1").Return(domain.ErrLastOwner)

	w := httptest.NewRecorder()
	h.RemoveMember(w, newRequest(http.MethodDelete, "/workspace/members/user-1", nil, map[string]string{"userID": "user-1"}))

	assert.Equal(t, http.StatusConflict, w.Code)
	msg, code := decodeError(t, w)
	assert.Equal(t, "workspace must keep at least one owner", msg)
	assert.Equal(t, domain.ErrCodeInvalidOperation, code)
}
