//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewAPIKeyRepository(pool)

	ws := setupWorkspace(ctx, t, pool, "owner-1")
	key := domain.NewAPIKey(uuid.NewString(), ws.ID, "owner-1", "ci", "hash-1", now())
	require.NoError(t, repo.Create(ctx, key))

	got, err := repo.GetByID(ctx, ws.ID, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.WorkspaceID, got.WorkspaceID)
	assert.Equal(t, "owner-1", got.UserID)
	assert.Equal(t, "ci", got.Name)
	assert.Nil(t, got.LastUsedAt)
	assert.False(t, got.IsRevoked())

	byHash, err := repo.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, key.ID, byHash.ID)

	t.Run("other workspace cannot read it", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString(), key.ID)
		assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)
	})

	t.Run("duplicate hash", func(t *testing.T) {
		dup := domain.NewAPIKey(uuid.NewString(), ws.ID, "owner-1", "dup", "hash-1", now())
		assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrAPIKeyAlreadyExists)
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, err := repo.GetByHash(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)
	})
}

func TestAPIKeyRepository_Create_ForeignKeyViolation(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)

	key := domain.NewAPIKey(uuid.NewString(), uuid.NewString(), "owner-1", "orphan", "hash", now())
	assert.Error(t, NewAPIKeyRepository(pool).Create(ctx, key))
}

func TestAPIKeyRepository_ListByWorkspace(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewAPIKeyRepository(pool)

	ws := setupWorkspace(ctx, t, pool, "owner-1")
	other := setupWorkspace(ctx, t, pool, "owner-2")

	first := domain.NewAPIKey(uuid.NewString(), ws.ID, "owner-1", "first", "hash-1", now())
	second := domain.NewAPIKey(uuid.NewString(), ws.ID, "owner-1", "second", "hash-2", now().Add(time.Second))
	foreign := domain.NewAPIKey(uuid.NewString(), other.ID, "owner-2", "foreign", "hash-3", now())
	for _, k := range []*domain.APIKey{first, second, foreign} {
		require.NoError(t, repo.Create(ctx, k))
	}

	keys, err := repo.ListByWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "second", keys[0].Name)
	assert.Equal(t, "first", keys[1].Name)

	empty, err := repo.ListByWorkspace(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestAPIKeyRepository_Revoke(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewAPIKeyRepository(pool)

	ws := setupWorkspace(ctx, t, pool, "owner-1")
	key := domain.NewAPIKey(uuid.NewString(), ws.ID, "owner-1", "to revoke", "hash", now())
	require.NoError(t, repo.Create(ctx, key))

	require.NoError(t, repo.Revoke(ctx, ws.ID, key.ID))

	got, err := repo.GetByID(ctx, ws.ID, key.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())

	t.Run("already revoked", func(t *testing.T) {
		assert.ErrorIs(t, repo.Revoke(ctx, ws.ID, key.ID), domain.ErrAPIKeyNotFound)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.ErrorIs(t, repo.Revoke(ctx, ws.ID, uuid.NewString()), domain.ErrAPIKeyNotFound)
	})
}

func TestAPIKeyRepository_TouchLastUsed(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewAPIKeyRepository(pool)

	ws := setupWorkspace(ctx, t, pool, "owner-1")
	key := domain.NewAPIKey(uuid.NewString(), ws.ID, "owner-1", "ci", "hash", now())
	require.NoError(t, repo.Create(ctx, key))

	first := now()
	require.NoError(t, repo.TouchLastUsed(ctx, key.ID, first))

	// Within the same minute the timestamp is left alone.
	require.NoError(t, repo.TouchLastUsed(ctx, key.ID, first.Add(10*time.Second)))
	got, err := repo.GetByID(ctx, ws.ID, key.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, got.LastUsedAt.Equal(first))

	later := first.Add(2 * time.Minute)
	require.NoError(t, repo.TouchLastUsed(ctx, key.ID, later))
	got, err = repo.GetByID(ctx, ws.ID, key.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUsedAt.Equal(later))
}
