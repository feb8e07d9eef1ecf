package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type KnowledgeBaseRepository struct {
	db dbtx
}

func NewKnowledgeBaseRepository(pool *pgxpool.Pool) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: pool}
}

func NewKnowledgeBaseRepositoryWithTx(tx pgx.Tx) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: tx}
}

const knowledgeBaseSelect = `SELECT kb.id, kb.workspace_id, kb.name, kb.description,
	(SELECT COUNT(*) FROM knowledge_documents d WHERE d.knowledge_base_id = kb.id),
	kb.created_at, kb.updated_at
	FROM knowledge_bases kb`

func scanKnowledgeBase(row pgx.Row) (*domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	err := row.Scan(&kb.ID, &kb.WorkspaceID, &kb.Name, &kb.Description, &kb.DocumentCount, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

func (r *KnowledgeBaseRepository) Create(ctx context.Context, kb *domain.KnowledgeBase) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_bases (id, workspace_id, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		kb.ID, kb.WorkspaceID, kb.Name, kb.Description, kb.CreatedAt, kb.UpdatedAt,
	)
	return err
}

func (r *KnowledgeBaseRepository) GetByID(ctx context.Context, workspaceID, id string) (*domain.KnowledgeBase, error) {
	kb, err := scanKnowledgeBase(r.db.QueryRow(ctx,
		knowledgeBaseSelect+` WHERE kb.id = $1 AND kb.workspace_id = $2`, id, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrKnowledgeBaseNotFound
	}
	return kb, err
}

func (r *KnowledgeBaseRepository) List(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.KnowledgeBase], error) {
	limit = pageSize(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			knowledgeBaseSelect+` WHERE kb.workspace_id = $1 AND (kb.created_at, kb.id) < ($2, $3)
			 ORDER BY kb.created_at DESC, kb.id DESC LIMIT $4`,
			workspaceID, cursor.Timestamp, cursor.LastID, limit+1)
	} else {
		rows, err = r.db.Query(ctx,
			knowledgeBaseSelect+` WHERE kb.workspace_id = $1
			 ORDER BY kb.created_at DESC, kb.id DESC LIMIT $2`,
			workspaceID, limit+1)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kbs []*domain.KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, err
		}
		kbs = append(kbs, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.Build(kbs, limit, func(kb *domain.KnowledgeBase) (string, time.Time) {
		return kb.ID, kb.CreatedAt
	}), nil
}

func (r *KnowledgeBaseRepository) Update(ctx context.Context, kb *domain.KnowledgeBase) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE knowledge_bases SET name = $1, description = $2, updated_at = $3 WHERE id = $4 AND workspace_id = $5`,
		kb.Name, kb.Description, kb.UpdatedAt, kb.ID, kb.WorkspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrKnowledgeBaseNotFound
	}
	return nil
}

func (r *KnowledgeBaseRepository) Delete(ctx context.Context, workspaceID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrKnowledgeBaseNotFound
	}
	return nil
}

// CountOwned returns how many of ids belong to the workspace.
func (r *KnowledgeBaseRepository) CountOwned(ctx context.Context, workspaceID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_bases WHERE workspace_id = $1 AND id::text = ANY($2)`,
		workspaceID, ids).Scan(&n)
	return n, err
}

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

const documentColumns = `id, knowledge_base_id, workspace_id, source_type, title, source_url, content,
	storage_key, content_type, size_bytes, status, error, created_at, updated_at`

func scanDocument(row pgx.Row) (*domain.KnowledgeDocument, error) {
	var d domain.KnowledgeDocument
	var sourceURL, storageKey, contentType, errMsg *string
	err := row.Scan(&d.ID, &d.KnowledgeBaseID, &d.WorkspaceID, &d.SourceType, &d.Title, &sourceURL, &d.Content,
		&storageKey, &contentType, &d.SizeBytes, &d.Status, &errMsg, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.SourceURL = derefString(sourceURL)
	d.StorageKey = derefString(storageKey)
	d.ContentType = derefString(contentType)
	d.Error = derefString(errMsg)
	return &d, nil
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.KnowledgeDocument) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.KnowledgeBaseID, d.WorkspaceID, d.SourceType, d.Title, nullableString(d.SourceURL), d.Content,
		nullableString(d.StorageKey), nullableString(d.ContentType), d.SizeBytes, d.Status,
		nullableString(d.Error), d.CreatedAt, d.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.NewDomainError(domain.ErrCodeAlreadyExists, "url already exists in this knowledge base")
	}
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, workspaceID, knowledgeBaseID, id string) (*domain.KnowledgeDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM knowledge_documents
		 WHERE id = $1 AND knowledge_base_id = $2 AND workspace_id = $3`,
		id, knowledgeBaseID, workspaceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	return d, err
}

// Get loads a document by ID alone, for background indexing.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM knowledge_documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	return d, err
}

func (r *DocumentRepository) List(ctx context.Context, workspaceID, knowledgeBaseID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.KnowledgeDocument], error) {
	limit = pageSize(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+` FROM knowledge_documents
			 WHERE knowledge_base_id = $1 AND workspace_id = $2 AND (created_at, id) < ($3, $4)
			 ORDER BY created_at DESC, id DESC LIMIT $5`,
			knowledgeBaseID, workspaceID, cursor.Timestamp, cursor.LastID, limit+1)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+` FROM knowledge_documents
			 WHERE knowledge_base_id = $1 AND workspace_id = $2
			 ORDER BY created_at DESC, id DESC LIMIT $3`,
			knowledgeBaseID, workspaceID, limit+1)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.KnowledgeDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.Build(docs, limit, func(d *domain.KnowledgeDocument) (string, time.Time) {
		return d.ID, d.CreatedAt
	}), nil
}

// ListStorageKeys returns object keys of file documents in a knowledge base.
func (r *DocumentRepository) ListStorageKeys(ctx context.Context, knowledgeBaseID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT storage_key FROM knowledge_documents WHERE knowledge_base_id = $1 AND storage_key IS NOT NULL`,
		knowledgeBaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE knowledge_documents SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`,
		status, nullableString(errMsg), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// SetContent stores extracted text for file documents before indexing.
func (r *DocumentRepository) SetContent(ctx context.Context, id, content string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE knowledge_documents SET content = $1, updated_at = NOW() WHERE id = $2`, content, id)
	return err
}

// MarkUploaded moves an uploading document to pending once its object exists.
func (r *DocumentRepository) MarkUploaded(ctx context.Context, id string, sizeBytes int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE knowledge_documents SET status = 'pending', size_bytes = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'uploading'`,
		sizeBytes, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUploadNotPending
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, workspaceID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM knowledge_documents WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) CountByWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_documents WHERE workspace_id = $1`, workspaceID).Scan(&n)
	return n, err
}
