package repository

import (
	"context"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository handles persistence of embedded document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks (document_id, knowledge_base_id, chunk_index, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			documentID, c.KnowledgeBaseID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// Search ranks chunks of the given knowledge bases by cosine similarity to embedding.
func (r *ChunkRepository) Search(ctx context.Context, knowledgeBaseIDs []string, embedding []float32, limit int) ([]*domain.SearchHit, error) {
	if len(knowledgeBaseIDs) == 0 {
		return []*domain.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.document_id, c.knowledge_base_id, d.title, c.chunk_index, c.content,
		        1 - (c.embedding <=> $1) AS score
		 FROM document_chunks c
		 JOIN knowledge_documents d ON d.id = c.document_id
		 WHERE c.knowledge_base_id::text = ANY($2) AND d.status = 'ready'
		 ORDER BY c.embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), knowledgeBaseIDs, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := make([]*domain.SearchHit, 0)
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(&h.DocumentID, &h.KnowledgeBaseID, &h.Title, &h.ChunkIndex, &h.Content, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}
