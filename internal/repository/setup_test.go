//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newTestPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func setupWorkspace(ctx context.Context, t *testing.T, pool *pgxpool.Pool, ownerID string) *domain.Workspace {
	t.Helper()
	id := uuid.NewString()
	ws := domain.NewWorkspace(id, "Acme Support", "acme-"+id[:8], now())
	require.NoError(t, NewWorkspaceRepository(pool).Create(ctx, ws))
	require.NoError(t, NewMemberRepository(pool).Add(ctx, &domain.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      ownerID,
		Role:        domain.RoleOwner,
		CreatedAt:   now(),
	}))
	return ws
}

func setupDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, ws *domain.Workspace) (*domain.KnowledgeBase, *domain.KnowledgeDocument) {
	t.Helper()
	kb := &domain.KnowledgeBase{
		ID:          uuid.NewString(),
		WorkspaceID: ws.ID,
		Name:        "Help center",
		CreatedAt:   now(),
		UpdatedAt:   now(),
	}
	require.NoError(t, NewKnowledgeBaseRepository(pool).Create(ctx, kb))

	doc := &domain.KnowledgeDocument{
		ID:              uuid.NewString(),
		KnowledgeBaseID: kb.ID,
		WorkspaceID:     ws.ID,
		SourceType:      domain.SourceTypeText,
		Title:           "Opening hours",
		Content:         "We open at nine.",
		SizeBytes:       16,
		Status:          domain.DocumentStatusReady,
		CreatedAt:       now(),
		UpdatedAt:       now(),
	}
	require.NoError(t, NewDocumentRepository(pool).Create(ctx, doc))
	return kb, doc
}
