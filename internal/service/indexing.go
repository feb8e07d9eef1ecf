package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type IndexJobRepository interface {
	Create(ctx context.Context, job *domain.IndexJob) error
	GetByID(ctx context.Context, id string) (*domain.IndexJob, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IndexJobStatus, errMsg string) error
	IncrementRetries(ctx context.Context, id string) error
}

// IndexingService turns document text into embedded chunks.
type IndexingService struct {
	client   EmbeddingClient
	docs     DocumentRepository
	tx       TxRunner
	chunkCfg ChunkConfig
}

func NewIndexingService(client EmbeddingClient, docs DocumentRepository, tx TxRunner) *IndexingService {
	return &IndexingService{
		client:   client,
		docs:     docs,
		tx:       tx,
		chunkCfg: DefaultChunkConfig(),
	}
}

// IndexDocument chunks the document, embeds every chunk and swaps the stored
// chunks in one go. The document is ready once this returns nil.
func (s *IndexingService) IndexDocument(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IndexingService.IndexDocument", telemetry.SpanAttributes{
		ResourceID: documentID,
		Operation:  "index",
	})
	defer span.End()

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.docs.UpdateStatus(ctx, doc.ID, domain.DocumentStatusIndexing, ""); err != nil {
		return err
	}

	pieces := chunkText(doc.Content, s.chunkCfg)
	if len(pieces) == 0 {
		return fmt.Errorf("document %s has no text to index", doc.ID)
	}

	chunks := make([]domain.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		embedding, err := s.client.GenerateEmbedding(ctx, buildChunkEmbeddingText(doc.Title, piece))
		if err != nil {
			span.SetError(err)
			return fmt.Errorf("failed to generate chunk embedding: %w", err)
		}
		chunks = append(chunks, domain.DocumentChunk{
			DocumentID:      doc.ID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			ChunkIndex:      i,
			Content:         piece,
			Embedding:       embedding,
		})
	}

	return s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().ReplaceChunks(ctx, doc.ID, chunks); err != nil {
			return fmt.Errorf("failed to update document chunks: %w", err)
		}
		return repos.Documents().UpdateStatus(ctx, doc.ID, domain.DocumentStatusReady, "")
	})
}

// FailDocument records that a document could not be indexed.
func (s *IndexingService) FailDocument(ctx context.Context, documentID, reason string) error {
	return s.docs.UpdateStatus(ctx, documentID, domain.DocumentStatusFailed, reason)
}

func (s *KnowledgeService) newIndexJob(documentID string, at time.Time) *domain.IndexJob {
	return domain.NewIndexJob(s.uuidGen.NewString(), documentID, domain.IndexJobStatusPending, 0, "", at, nil)
}

func buildChunkEmbeddingText(title, chunk string) string {
	var parts []string
	if title != "" {
		parts = append(parts, title)
	}
	if chunk != "" {
		parts = append(parts, chunk)
	}
	return strings.Join(parts, "\n\n")
}
