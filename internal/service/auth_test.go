package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const validToken = "bst_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newAuthService(keys *MockAPIKeyRepository, members *MockMemberRepository, uuids ...string) *AuthService {
	return NewAuthService(keys, members, NewMockUUIDGenerator(uuids...), testLogger())
}

func TestAuthService_CreateAPIKey(t *testing.T) {
	ctx := context.Background()
	keys := new(MockAPIKeyRepository)
	members := new(MockMemberRepository)

	members.On("Get", ctx, "ws-1", "user-1").Return(&domain.WorkspaceMember{Role: domain.RoleMember}, nil)

	var stored *domain.APIKey
	keys.On("Create", ctx, mock.AnythingOfType("*domain.APIKey")).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.APIKey)
	}).Return(nil)

	svc := newAuthService(keys, members, "key-123")
	key, token, err := svc.CreateAPIKey(ctx, "ws-1", "user-1", " ci ")

	require.NoError(t, err)
	assert.Equal(t, "key-123", key.ID)
	assert.Equal(t, "ci", key.Name)
	assert.True(t, strings.HasPrefix(token, "bst_"))
	assert.Len(t, token, 68)
	require.NotNil(t, stored)
	assert.Equal(t, hashToken(token), stored.KeyHash)
	assert.NotContains(t, stored.KeyHash, token)
	keys.AssertExpectations(t)
}

func TestAuthService_CreateAPIKey_NotAMember(t *testing.T) {
	ctx := context.Background()
	keys := new(MockAPIKeyRepository)
	members := new(MockMemberRepository)
	members.On("Get", ctx, "ws-1", "stranger").Return(nil, domain.ErrMemberNotFound)

	svc := newAuthService(keys, members)
	_, _, err := svc.CreateAPIKey(ctx, "ws-1", "stranger", "ci")

	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	keys.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_CreateAPIKey_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(new(MockAPIKeyRepository), new(MockMemberRepository))

	_, _, err := svc.CreateAPIKey(ctx, "", "user-1", "ci")
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))

	_, _, err = svc.CreateAPIKey(ctx, "ws-1", "user-1", "  ")
	assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
}

func TestAuthService_CreateAPIKeyWithToken(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the hash of the given token", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		members := new(MockMemberRepository)
		members.On("Get", ctx, "ws-1", "user-1").Return(&domain.WorkspaceMember{Role: domain.RoleOwner}, nil)
		keys.On("Create", ctx, mock.MatchedBy(func(k *domain.APIKey) bool {
			return k.KeyHash == hashToken(validToken) && k.Name == "bootstrap"
		})).Return(nil)

		svc := newAuthService(keys, members, "key-1")
		require.NoError(t, svc.CreateAPIKeyWithToken(ctx, "ws-1", "user-1", "bootstrap", validToken))
		keys.AssertExpectations(t)
	})

	t.Run("rejects malformed tokens", func(t *testing.T) {
		svc := newAuthService(new(MockAPIKeyRepository), new(MockMemberRepository))
		err := svc.CreateAPIKeyWithToken(ctx, "ws-1", "user-1", "bootstrap", "bst_short")
		assert.Equal(t, domain.ErrCodeValidation, domain.CodeOf(err))
	})
}

func TestAuthService_ValidateAPIKey(t *testing.T) {
	ctx := context.Background()
	hash := hashToken(validToken)

	t.Run("valid key resolves the principal", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		members := new(MockMemberRepository)
		keys.On("GetByHash", ctx, hash).Return(&domain.APIKey{ID: "key-1", WorkspaceID: "ws-1", UserID: "user-1"}, nil)
		members.On("Get", ctx, "ws-1", "user-1").Return(&domain.WorkspaceMember{Role: domain.RoleAdmin}, nil)
		keys.On("TouchLastUsed", ctx, "key-1", mock.AnythingOfType("time.Time")).Return(nil)

		p, err := newAuthService(keys, members).ValidateAPIKey(ctx, validToken)

		require.NoError(t, err)
		assert.Equal(t, domain.Principal{WorkspaceID: "ws-1", UserID: "user-1", Role: domain.RoleAdmin}, *p)
		keys.AssertExpectations(t)
	})

	t.Run("malformed token never hits the database", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		_, err := newAuthService(keys, new(MockMemberRepository)).ValidateAPIKey(ctx, "Bearer nope")
		assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
		keys.AssertNotCalled(t, "GetByHash", mock.Anything, mock.Anything)
	})

	t.Run("unknown key", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		keys.On("GetByHash", ctx, hash).Return(nil, domain.ErrAPIKeyNotFound)
		_, err := newAuthService(keys, new(MockMemberRepository)).ValidateAPIKey(ctx, validToken)
		assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
	})

	t.Run("revoked key", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		revoked := time.Now()
		keys.On("GetByHash", ctx, hash).Return(&domain.APIKey{ID: "key-1", WorkspaceID: "ws-1", UserID: "user-1", RevokedAt: &revoked}, nil)
		_, err := newAuthService(keys, new(MockMemberRepository)).ValidateAPIKey(ctx, validToken)
		assert.ErrorIs(t, err, domain.ErrAPIKeyRevoked)
	})

	t.Run("holder left the workspace", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		members := new(MockMemberRepository)
		keys.On("GetByHash", ctx, hash).Return(&domain.APIKey{ID: "key-1", WorkspaceID: "ws-1", UserID: "user-1"}, nil)
		members.On("Get", ctx, "ws-1", "user-1").Return(nil, domain.ErrMemberNotFound)

		_, err := newAuthService(keys, members).ValidateAPIKey(ctx, validToken)
		assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
	})
}

func TestAuthService_ListAPIKeys(t *testing.T) {
	ctx := context.Background()
	all := []*domain.APIKey{
		{ID: "key-1", UserID: "member-1"},
		{ID: "key-2", UserID: "admin-1"},
	}

	keys := new(MockAPIKeyRepository)
	keys.On("ListByWorkspace", ctx, "ws-1").Return(all, nil)
	svc := newAuthService(keys, new(MockMemberRepository))

	got, err := svc.ListAPIKeys(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.ListAPIKeys(ctx, memberPrincipal)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "key-1", got[0].ID)
}

func TestAuthService_RevokeAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("own key", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		keys.On("GetByID", ctx, "ws-1", "key-1").Return(&domain.APIKey{ID: "key-1", UserID: "member-1"}, nil)
		keys.On("Revoke", ctx, "ws-1", "key-1").Return(nil)

		require.NoError(t, newAuthService(keys, new(MockMemberRepository)).RevokeAPIKey(ctx, memberPrincipal, "key-1"))
		keys.AssertExpectations(t)
	})

	t.Run("someone else's key looks missing to members", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		keys.On("GetByID", ctx, "ws-1", "key-2").Return(&domain.APIKey{ID: "key-2", UserID: "admin-1"}, nil)

		err := newAuthService(keys, new(MockMemberRepository)).RevokeAPIKey(ctx, memberPrincipal, "key-2")
		assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)
		keys.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("managers revoke any key", func(t *testing.T) {
		keys := new(MockAPIKeyRepository)
		keys.On("GetByID", ctx, "ws-1", "key-1").Return(&domain.APIKey{ID: "key-1", UserID: "member-1"}, nil)
		keys.On("Revoke", ctx, "ws-1", "key-1").Return(nil)

		require.NoError(t, newAuthService(keys, new(MockMemberRepository)).RevokeAPIKey(ctx, ownerPrincipal, "key-1"))
	})
}

func TestIsValidAPIToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{validToken, true},
		{strings.ToUpper(validToken[:4]) + validToken[4:], false},
		{"bst_" + strings.Repeat("A", 64), true},
		{"bst_" + strings.Repeat("g", 64), false},
		{"bst_" + strings.Repeat("a", 63), false},
		{"key_" + strings.Repeat("a", 64), false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidAPIToken(tt.token), tt.token)
	}
}
