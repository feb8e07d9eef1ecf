package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
)

type WorkspaceRepository interface {
	Create(ctx context.Context, w *domain.Workspace) error
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context) ([]*domain.Workspace, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Workspace, error)
	Rename(ctx context.Context, id, name string) error
}

type MemberRepository interface {
	Add(ctx context.Context, m *domain.WorkspaceMember) error
	Get(ctx context.Context, workspaceID, userID string) (*domain.WorkspaceMember, error)
	List(ctx context.Context, workspaceID string) ([]*domain.WorkspaceMember, error)
	ListByRole(ctx context.Context, workspaceID string, role domain.Role) ([]*domain.WorkspaceMember, error)
	UpdateRole(ctx context.Context, workspaceID, userID string, role domain.Role) error
	Remove(ctx context.Context, workspaceID, userID string) error
	CountOwners(ctx context.Context, workspaceID string) (int, error)
}

const maxSlugAttempts = 20

// WorkspaceService manages tenants and their membership.
type WorkspaceService struct {
	workspaces WorkspaceRepository
	members    MemberRepository
	tx         TxRunner
	uuidGen    UUIDGenerator
}

func NewWorkspaceService(workspaces WorkspaceRepository, members MemberRepository, tx TxRunner, uuidGen UUIDGenerator) *WorkspaceService {
	return &WorkspaceService{
		workspaces: workspaces,
		members:    members,
		tx:         tx,
		uuidGen:    uuidGen,
	}
}

// CreateWorkspace creates a workspace owned by ownerID on the free plan.
func (s *WorkspaceService) CreateWorkspace(ctx context.Context, name, ownerID string) (*domain.Workspace, error) {
	ws, _, err := s.create(ctx, name, ownerID, "")
	return ws, err
}

// CreateWorkspaceWithKey also issues an API key for the owner and returns its plaintext token.
func (s *WorkspaceService) CreateWorkspaceWithKey(ctx context.Context, name, ownerID, keyName string) (*domain.Workspace, string, error) {
	if keyName == "" {
		keyName = "default"
	}
	return s.create(ctx, name, ownerID, keyName)
}

func (s *WorkspaceService) create(ctx context.Context, name, ownerID, keyName string) (*domain.Workspace, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "WorkspaceService.Create", telemetry.SpanAttributes{
		UserID:    ownerID,
		Operation: "create",
	})
	defer span.End()

	name = strings.TrimSpace(name)
	if ownerID == "" {
		return nil, "", domain.ValidationError("owner user ID is required")
	}

	slug, err := s.uniqueSlug(ctx, domain.Slugify(name))
	if err != nil {
		return nil, "", err
	}

	createdAt := utcNow()
	ws := domain.NewWorkspace(s.uuidGen.NewString(), name, slug, createdAt)
	if err := domain.ValidateWorkspace(ws); err != nil {
		return nil, "", err
	}

	token, err := s.insert(ctx, ws, ownerID, keyName)
	if errors.Is(err, domain.ErrWorkspaceAlreadyExists) {
		// The slug was taken between the probe and the insert.
		ws.Slug = fmt.Sprintf("%s-%s", slug, s.uuidGen.NewString()[:8])
		token, err = s.insert(ctx, ws, ownerID, keyName)
	}
	if err != nil {
		span.SetError(err)
		return nil, "", err
	}

	return ws, token, nil
}

// insert stores the workspace with its owner, free subscription and optional API key.
func (s *WorkspaceService) insert(ctx context.Context, ws *domain.Workspace, ownerID, keyName string) (string, error) {
	createdAt := ws.CreatedAt
	var token string
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Workspaces().Create(ctx, ws); err != nil {
			return err
		}
		if err := repos.Members().Add(ctx, &domain.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      ownerID,
			Role:        domain.RoleOwner,
			CreatedAt:   createdAt,
		}); err != nil {
			return err
		}
		if err := repos.Subscriptions().Create(ctx, &domain.Subscription{
			ID:                 s.uuidGen.NewString(),
			WorkspaceID:        ws.ID,
			PlanID:             domain.FreePlanID,
			Status:             domain.SubscriptionStatusActive,
			CurrentPeriodStart: createdAt,
			CurrentPeriodEnd:   domain.NextPeriodEnd(createdAt, "month"),
			CreatedAt:          createdAt,
			UpdatedAt:          createdAt,
		}); err != nil {
			return err
		}
		if keyName == "" {
			return nil
		}

		var key *domain.APIKey
		var err error
		key, token, err = newAPIKey(s.uuidGen, ws.ID, ownerID, keyName)
		if err != nil {
			return err
		}
		return repos.APIKeys().Create(ctx, key)
	})
	return token, err
}

func (s *WorkspaceService) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.workspaces.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.uuidGen.NewString()[:8]), nil
}

func (s *WorkspaceService) GetWorkspace(ctx context.Context, p domain.Principal) (*domain.Workspace, error) {
	return s.workspaces.GetByID(ctx, p.WorkspaceID)
}

func (s *WorkspaceService) ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error) {
	return s.workspaces.List(ctx)
}

func (s *WorkspaceService) ListWorkspacesForUser(ctx context.Context, userID string) ([]*domain.Workspace, error) {
	return s.workspaces.ListForUser(ctx, userID)
}

func (s *WorkspaceService) RenameWorkspace(ctx context.Context, p domain.Principal, name string) (*domain.Workspace, error) {
	if err := requireManager(p); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.GetByID(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	ws.Name = strings.TrimSpace(name)
	if err := domain.ValidateWorkspace(ws); err != nil {
		return nil, err
	}
	if err := s.workspaces.Rename(ctx, ws.ID, ws.Name); err != nil {
		return nil, err
	}
	return s.workspaces.GetByID(ctx, ws.ID)
}

func (s *WorkspaceService) ListMembers(ctx context.Context, p domain.Principal) ([]*domain.WorkspaceMember, error) {
	return s.members.List(ctx, p.WorkspaceID)
}

// AddMember adds userID to the caller's workspace. Only owners may grant the owner role.
func (s *WorkspaceService) AddMember(ctx context.Context, p domain.Principal, userID string, role domain.Role) (*domain.WorkspaceMember, error) {
	if err := requireManager(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ValidationError("user_id is required")
	}
	if !domain.IsValidRole(role) {
		return nil, domain.ValidationError("role must be owner, admin or member")
	}
	if role == domain.RoleOwner && p.Role != domain.RoleOwner {
		return nil, domain.ErrForbidden
	}

	m := &domain.WorkspaceMember{
		WorkspaceID: p.WorkspaceID,
		UserID:      userID,
		Role:        role,
		CreatedAt:   utcNow(),
	}
	if err := s.members.Add(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMemberRole changes a member's role. The last owner cannot be demoted.
func (s *WorkspaceService) UpdateMemberRole(ctx context.Context, p domain.Principal, userID string, role domain.Role) (*domain.WorkspaceMember, error) {
	if err := requireManager(p); err != nil {
		return nil, err
	}
	if !domain.IsValidRole(role) {
		return nil, domain.ValidationError("role must be owner, admin or member")
	}

	var updated *domain.WorkspaceMember
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		target, err := repos.Members().Get(ctx, p.WorkspaceID, userID)
		if err != nil {
			return err
		}
		if (target.Role == domain.RoleOwner || role == domain.RoleOwner) && p.Role != domain.RoleOwner {
			return domain.ErrForbidden
		}
		if target.Role == domain.RoleOwner && role != domain.RoleOwner {
			if err := ensureAnotherOwner(ctx, repos.Members(), p.WorkspaceID); err != nil {
				return err
			}
		}
		if err := repos.Members().UpdateRole(ctx, p.WorkspaceID, userID, role); err != nil {
			return err
		}
		target.Role = role
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveMember removes a member. Any member may remove themselves; the last owner cannot leave.
func (s *WorkspaceService) RemoveMember(ctx context.Context, p domain.Principal, userID string) error {
	if userID != p.UserID {
		if err := requireManager(p); err != nil {
			return err
		}
	}

	return s.tx.WithTx(ctx, func(repos TxRepositories) error {
		target, err := repos.Members().Get(ctx, p.WorkspaceID, userID)
		if err != nil {
			return err
		}
		if target.Role == domain.RoleOwner {
			if userID != p.UserID && p.Role != domain.RoleOwner {
				return domain.ErrForbidden
			}
			if err := ensureAnotherOwner(ctx, repos.Members(), p.WorkspaceID); err != nil {
				return err
			}
		}
		return repos.Members().Remove(ctx, p.WorkspaceID, userID)
	})
}

func ensureAnotherOwner(ctx context.Context, members MemberRepository, workspaceID string) error {
	owners, err := members.CountOwners(ctx, workspaceID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}

// IsMember reports whether userID belongs to the workspace.
func (s *WorkspaceService) IsMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	_, err := s.members.Get(ctx, workspaceID, userID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return false, nil
	}
	return err == nil, err
}
