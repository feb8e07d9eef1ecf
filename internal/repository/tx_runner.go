package repository

import (
	"context"

	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner provides transactional repositories using a pgx pool.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &txRepos{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Workspaces() service.WorkspaceRepository {
	return NewWorkspaceRepositoryWithTx(r.tx)
}

func (r *txRepos) Members() service.MemberRepository {
	return NewMemberRepositoryWithTx(r.tx)
}

func (r *txRepos) APIKeys() service.APIKeyRepository {
	return NewAPIKeyRepositoryWithTx(r.tx)
}

func (r *txRepos) Subscriptions() service.SubscriptionRepository {
	return NewSubscriptionRepositoryWithTx(r.tx)
}

func (r *txRepos) Bots() service.BotRepository {
	return NewBotRepositoryWithTx(r.tx)
}

func (r *txRepos) Widgets() service.WidgetRepository {
	return NewWidgetRepositoryWithTx(r.tx)
}

func (r *txRepos) KnowledgeBases() service.KnowledgeBaseRepository {
	return NewKnowledgeBaseRepositoryWithTx(r.tx)
}

func (r *txRepos) Documents() service.DocumentRepository {
	return NewDocumentRepositoryWithTx(r.tx)
}

func (r *txRepos) Chunks() service.ChunkRepository {
	return NewChunkRepositoryWithTx(r.tx)
}

func (r *txRepos) IndexJobs() service.IndexJobRepository {
	return NewIndexJobRepositoryWithTx(r.tx)
}

func (r *txRepos) GenerationJobs() service.GenerationJobRepository {
	return NewGenerationJobRepositoryWithTx(r.tx)
}
