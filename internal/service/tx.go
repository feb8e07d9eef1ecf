package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Workspaces() WorkspaceRepository
	Members() MemberRepository
	APIKeys() APIKeyRepository
	Subscriptions() SubscriptionRepository
	Bots() BotRepository
	Widgets() WidgetRepository
	KnowledgeBases() KnowledgeBaseRepository
	Documents() DocumentRepository
	Chunks() ChunkRepository
	IndexJobs() IndexJobRepository
	GenerationJobs() GenerationJobRepository
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
