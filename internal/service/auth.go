package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/sirupsen/logrus"
)

const apiKeyPrefix = "bst_"

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, workspaceID, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, workspaceID, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// AuthService issues and validates API keys.
type AuthService struct {
	keyRepo APIKeyRepository
	members MemberRepository
	uuidGen UUIDGenerator
	log     logrus.FieldLogger
}

func NewAuthService(keyRepo APIKeyRepository, members MemberRepository, uuidGen UUIDGenerator, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		keyRepo: keyRepo,
		members: members,
		uuidGen: uuidGen,
		log:     log.WithField("component", "auth"),
	}
}

// CreateAPIKey issues a key for a member of the workspace. The plaintext token
// is returned once and never stored.
func (s *AuthService) CreateAPIKey(ctx context.Context, workspaceID, userID, name string) (*domain.APIKey, string, error) {
	if workspaceID == "" || userID == "" {
		return nil, "", domain.ValidationError("workspace ID and user ID are required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, "", domain.ValidationError("API key name is required")
	}

	if _, err := s.members.Get(ctx, workspaceID, userID); err != nil {
		return nil, "", err
	}

	key, token, err := newAPIKey(s.uuidGen, workspaceID, userID, name)
	if err != nil {
		return nil, "", err
	}

	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, "", err
	}

	return key, token, nil
}

// CreateAPIKeyWithToken stores a caller-chosen token, used to bootstrap environments.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, workspaceID, userID, name, token string) error {
	if !IsValidAPIToken(token) {
		return domain.ValidationError("invalid API key format (expected bst_<64 hex chars>)")
	}
	if _, err := s.members.Get(ctx, workspaceID, userID); err != nil {
		return err
	}

	key := domain.NewAPIKey(s.uuidGen.NewString(), workspaceID, userID, name, hashToken(token), utcNow())
	if err := domain.ValidateAPIKey(key); err != nil {
		return domain.ValidationError("%s", err.Error())
	}

	return s.keyRepo.Create(ctx, key)
}

// ValidateAPIKey resolves a bearer token to the calling principal.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (*domain.Principal, error) {
	if !IsValidAPIToken(token) {
		return nil, domain.ErrInvalidAPIKey
	}

	key, err := s.keyRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}

	if key.IsRevoked() {
		return nil, domain.ErrAPIKeyRevoked
	}

	member, err := s.members.Get(ctx, key.WorkspaceID, key.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}

	if err := s.keyRepo.TouchLastUsed(ctx, key.ID, utcNow()); err != nil {
		s.log.WithError(err).WithField("api_key_id", key.ID).Warn("failed to record api key usage")
	}

	return &domain.Principal{
		WorkspaceID: key.WorkspaceID,
		UserID:      key.UserID,
		Role:        member.Role,
	}, nil
}

// ListAPIKeys returns every key of the workspace to managers and only their own keys to members.
func (s *AuthService) ListAPIKeys(ctx context.Context, p domain.Principal) ([]*domain.APIKey, error) {
	keys, err := s.keyRepo.ListByWorkspace(ctx, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if p.CanManage() {
		return keys, nil
	}
	own := make([]*domain.APIKey, 0, len(keys))
	for _, k := range keys {
		if k.UserID == p.UserID {
			own = append(own, k)
		}
	}
	return own, nil
}

// RevokeAPIKey revokes a key owned by the caller, or any workspace key for managers.
func (s *AuthService) RevokeAPIKey(ctx context.Context, p domain.Principal, keyID string) error {
	if keyID == "" {
		return domain.ValidationError("API key ID is required")
	}

	key, err := s.keyRepo.GetByID(ctx, p.WorkspaceID, keyID)
	if err != nil {
		return err
	}
	if key.UserID != p.UserID && !p.CanManage() {
		return domain.ErrAPIKeyNotFound
	}

	return s.keyRepo.Revoke(ctx, p.WorkspaceID, keyID)
}

func newAPIKey(uuidGen UUIDGenerator, workspaceID, userID, name string) (*domain.APIKey, string, error) {
	token, err := generateAPIToken()
	if err != nil {
		return nil, "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}
	key := domain.NewAPIKey(uuidGen.NewString(), workspaceID, userID, strings.TrimSpace(name), hashToken(token), utcNow())
	if err := domain.ValidateAPIKey(key); err != nil {
		return nil, "", domain.ValidationError("%s", err.Error())
	}
	return key, token, nil
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
