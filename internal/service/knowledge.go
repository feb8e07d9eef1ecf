package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/botstudio/internal/crawler"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

type KnowledgeBaseRepository interface {
	Create(ctx context.Context, kb *domain.KnowledgeBase) error
	GetByID(ctx context.Context, workspaceID, id string) (*domain.KnowledgeBase, error)
	List(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.KnowledgeBase], error)
	Update(ctx context.Context, kb *domain.KnowledgeBase) error
	Delete(ctx context.Context, workspaceID, id string) error
	CountOwned(ctx context.Context, workspaceID string, ids []string) (int, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, d *domain.KnowledgeDocument) error
	GetByID(ctx context.Context, workspaceID, knowledgeBaseID, id string) (*domain.KnowledgeDocument, error)
	Get(ctx context.Context, id string) (*domain.KnowledgeDocument, error)
	List(ctx context.Context, workspaceID, knowledgeBaseID string, cursor *pagination.Cursor, limit int) (*pagination.Page[*domain.KnowledgeDocument], error)
	ListStorageKeys(ctx context.Context, knowledgeBaseID string) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	SetContent(ctx context.Context, id, content string) error
	MarkUploaded(ctx context.Context, id string, sizeBytes int64) error
	Delete(ctx context.Context, workspaceID, id string) error
	CountByWorkspace(ctx context.Context, workspaceID string) (int64, error)
}

type ChunkRepository interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.DocumentChunk) error
	Search(ctx context.Context, knowledgeBaseIDs []string, embedding []float32, limit int) ([]*domain.SearchHit, error)
}

type CrawlJobRepository interface {
	Create(ctx context.Context, c *domain.CrawlJob) error
	GetByID(ctx context.Context, workspaceID, knowledgeBaseID, id string) (*domain.CrawlJob, error)
	Get(ctx context.Context, id string) (*domain.CrawlJob, error)
	MarkRunning(ctx context.Context, id string) error
	IncrementPages(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status domain.CrawlStatus, errMsg string) error
}

// ObjectStore is the blob storage used for uploaded documents.
type ObjectStore interface {
	GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error)
	HeadObject(ctx context.Context, key string) (*ObjectMetadata, error)
	GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

// CrawlQueue hands crawl jobs to the background workers.
type CrawlQueue interface {
	EnqueueCrawl(ctx context.Context, crawlJobID string) (string, error)
}

// SiteCrawler walks a website and reports each readable page.
type SiteCrawler interface {
	Crawl(ctx context.Context, rootURL string, opts crawler.Options, visit crawler.VisitFunc) error
}

const (
	DefaultSearchResults = 5
	MaxSearchResults     = 20
)

// FileUpload is the result of InitFileUpload.
type FileUpload struct {
	Document  *domain.KnowledgeDocument
	UploadURL string
}

// KnowledgeService manages knowledge bases, their documents and retrieval.
type KnowledgeService struct {
	kbs      KnowledgeBaseRepository
	docs     DocumentRepository
	chunks   ChunkRepository
	crawls   CrawlJobRepository
	tx       TxRunner
	quota    QuotaGuard
	notifier NotificationSender
	uuidGen  UUIDGenerator
	log      logrus.FieldLogger

	store    ObjectStore
	queue    CrawlQueue
	crawler  SiteCrawler
	embedder EmbeddingClient
}

func NewKnowledgeService(
	kbs KnowledgeBaseRepository,
	docs DocumentRepository,
	chunks ChunkRepository,
	crawls CrawlJobRepository,
	tx TxRunner,
	quota QuotaGuard,
	notifier NotificationSender,
	uuidGen UUIDGenerator,
	log logrus.FieldLogger,
) *KnowledgeService {
	return &KnowledgeService{
		kbs:      kbs,
		docs:     docs,
		chunks:   chunks,
		crawls:   crawls,
		tx:       tx,
		quota:    quota,
		notifier: notifier,
		uuidGen:  uuidGen,
		log:      log.WithField("component", "knowledge"),
	}
}

// WithStorage enables file uploads.
func (s *KnowledgeService) WithStorage(store ObjectStore) *KnowledgeService {
	s.store = store
	return s
}

// WithCrawling enables website crawls. The queue is used by the API process,
// the crawler by the worker that runs the job.
func (s *KnowledgeService) WithCrawling(queue CrawlQueue, c SiteCrawler) *KnowledgeService {
	s.queue = queue
	s.crawler = c
	return s
}

// WithEmbedder enables semantic search.
func (s *KnowledgeService) WithEmbedder(e EmbeddingClient) *KnowledgeService {
	s.embedder = e
	return s
}

func (s *KnowledgeService) CreateKnowledgeBase(ctx context.Context, p domain.Principal, name, description string) (*domain.KnowledgeBase, error) {
	now := utcNow()
	kb := &domain.KnowledgeBase{
		ID:          s.uuidGen.NewString(),
		WorkspaceID: p.WorkspaceID,
		Name:        strings.TrimSpace(name),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := domain.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, err
	}
	return kb, nil
}

func (s *KnowledgeService) GetKnowledgeBase(ctx context.Context, p domain.Principal, id string) (*domain.KnowledgeBase, error) {
	return s.kbs.GetByID(ctx, p.WorkspaceID, id)
}

func (s *KnowledgeService) ListKnowledgeBases(ctx context.Context, p domain.Principal, in ListInput) (*pagination.Page[*domain.KnowledgeBase], error) {
	cursor, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, err
	}
	return s.kbs.List(ctx, p.WorkspaceID, cursor, in.Limit)
}

func (s *KnowledgeService) UpdateKnowledgeBase(ctx context.Context, p domain.Principal, id, name, description string) (*domain.KnowledgeBase, error) {
	kb, err := s.kbs.GetByID(ctx, p.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	if n := strings.TrimSpace(name); n != "" {
		kb.Name = n
	}
	kb.Description = description
	kb.UpdatedAt = utcNow()
	if err := domain.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}
	if err := s.kbs.Update(ctx, kb); err != nil {
		return nil, err
	}
	return kb, nil
}

// DeleteKnowledgeBase removes the knowledge base with its documents and chunks,
// detaches it from bots, then drops uploaded files.
func (s *KnowledgeService) DeleteKnowledgeBase(ctx context.Context, p domain.Principal, id string) error {
	if err := requireManager(p); err != nil {
		return err
	}
	if _, err := s.kbs.GetByID(ctx, p.WorkspaceID, id); err != nil {
		return err
	}

	keys, err := s.docs.ListStorageKeys(ctx, id)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Bots().DetachKnowledgeBase(ctx, p.WorkspaceID, id); err != nil {
			return err
		}
		return repos.KnowledgeBases().Delete(ctx, p.WorkspaceID, id)
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		s.deleteObject(ctx, key)
	}
	return nil
}

func (s *KnowledgeService) GetDocument(ctx context.Context, p domain.Principal, kbID, docID string) (*domain.KnowledgeDocument, error) {
	return s.docs.GetByID(ctx, p.WorkspaceID, kbID, docID)
}

func (s *KnowledgeService) ListDocuments(ctx context.Context, p domain.Principal, kbID string, in ListInput) (*pagination.Page[*domain.KnowledgeDocument], error) {
	if _, err := s.kbs.GetByID(ctx, p.WorkspaceID, kbID); err != nil {
		return nil, err
	}
	cursor, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, err
	}
	return s.docs.List(ctx, p.WorkspaceID, kbID, cursor, in.Limit)
}

// AddTextDocument stores pasted text and schedules it for indexing.
func (s *KnowledgeService) AddTextDocument(ctx context.Context, p domain.Principal, kbID, title, content string) (*domain.KnowledgeDocument, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.AddTextDocument", telemetry.SpanAttributes{
		WorkspaceID: p.WorkspaceID,
		ResourceID:  kbID,
		Operation:   "add_text",
	})
	defer span.End()

	if _, err := s.kbs.GetByID(ctx, p.WorkspaceID, kbID); err != nil {
		return nil, err
	}
	doc := s.newDocument(p.WorkspaceID, kbID, domain.SourceTypeText, title)
	doc.Content = content
	doc.ContentType = "text/plain"
	doc.SizeBytes = int64(len(content))
	doc.Status = domain.DocumentStatusPending

	if err := s.createForIndexing(ctx, doc); err != nil {
		span.SetError(err)
		return nil, err
	}
	return doc, nil
}

// InitFileUpload registers a document awaiting upload and returns a presigned URL for it.
func (s *KnowledgeService) InitFileUpload(ctx context.Context, p domain.Principal, kbID, filename, contentType string, size int64) (*FileUpload, error) {
	if s.store == nil {
		return nil, domain.ErrStorageNotConfigured
	}
	contentType = normalizeContentType(contentType)
	if !domain.IsAllowedContentType(contentType) {
		return nil, domain.ErrUnsupportedContentType
	}
	if size > domain.MaxDocumentBytes {
		return nil, domain.ValidationError("file must be at most %d bytes", domain.MaxDocumentBytes)
	}
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, domain.ValidationError("filename is required")
	}

	if _, err := s.kbs.GetByID(ctx, p.WorkspaceID, kbID); err != nil {
		return nil, err
	}
	if err := s.checkDocumentQuota(ctx, p.WorkspaceID); err != nil {
		return nil, err
	}

	doc := s.newDocument(p.WorkspaceID, kbID, domain.SourceTypeFile, filename)
	doc.ContentType = contentType
	doc.SizeBytes = size
	doc.Status = domain.DocumentStatusUploading
	doc.StorageKey = fmt.Sprintf("workspaces/%s/knowledge/%s/%s/%s", p.WorkspaceID, kbID, doc.ID, filename)
	if err := domain.ValidateKnowledgeDocument(doc); err != nil {
		return nil, err
	}

	uploadURL, err := s.store.GenerateUploadURL(ctx, doc.StorageKey, contentType)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, domain.ErrStorageOperationFail.Message, err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	return &FileUpload{Document: doc, UploadURL: uploadURL}, nil
}

// CompleteFileUpload verifies the uploaded object, copies its text into the
// document and queues it for indexing.
func (s *KnowledgeService) CompleteFileUpload(ctx context.Context, p domain.Principal, kbID, docID string) (*domain.KnowledgeDocument, error) {
	if s.store == nil {
		return nil, domain.ErrStorageNotConfigured
	}
	doc, err := s.docs.GetByID(ctx, p.WorkspaceID, kbID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.DocumentStatusUploading {
		return nil, domain.ErrUploadNotPending
	}

	meta, err := s.store.HeadObject(ctx, doc.StorageKey)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "uploaded file not found", err)
	}
	if meta.ContentLength > domain.MaxDocumentBytes {
		return nil, domain.ValidationError("file must be at most %d bytes", domain.MaxDocumentBytes)
	}

	raw, err := s.store.GetObject(ctx, doc.StorageKey, domain.MaxDocumentBytes)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, domain.ErrStorageOperationFail.Message, err)
	}
	content, derr := decodeDocument(doc.ContentType, raw)
	if derr != nil {
		if err := s.docs.UpdateStatus(ctx, doc.ID, domain.DocumentStatusFailed, derr.Message); err != nil {
			s.log.WithError(err).WithField("document_id", doc.ID).Warn("failed to mark document failed")
		}
		return nil, derr
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().SetContent(ctx, doc.ID, content); err != nil {
			return err
		}
		if err := repos.Documents().MarkUploaded(ctx, doc.ID, meta.ContentLength); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, s.newIndexJob(doc.ID, utcNow()))
	})
	if err != nil {
		return nil, err
	}

	doc.Content = content
	doc.SizeBytes = meta.ContentLength
	doc.Status = domain.DocumentStatusPending
	return doc, nil
}

// decodeDocument turns an uploaded file into UTF-8 text. HTML honours its
// declared or sniffed charset; plain text must already be UTF-8.
func decodeDocument(contentType string, raw []byte) (string, *domain.DomainError) {
	if contentType == "text/html" {
		r, err := charset.NewReader(bytes.NewReader(raw), contentType)
		if err != nil {
			return "", domain.ValidationError("could not decode html document")
		}
		page, err := crawler.ExtractText(r)
		if err != nil {
			return "", domain.ValidationError("could not parse html document")
		}
		return page.Text, nil
	}
	if !utf8.Valid(raw) {
		return "", domain.ErrDocumentEncoding
	}
	return strings.ReplaceAll(string(raw), "\x00", ""), nil
}

// DeleteDocument removes a document, its chunks and any uploaded file.
func (s *KnowledgeService) DeleteDocument(ctx context.Context, p domain.Principal, kbID, docID string) error {
	doc, err := s.docs.GetByID(ctx, p.WorkspaceID, kbID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, p.WorkspaceID, doc.ID); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		s.deleteObject(ctx, doc.StorageKey)
	}
	return nil
}

// StartCrawl records a crawl of rootURL and queues it.
func (s *KnowledgeService) StartCrawl(ctx context.Context, p domain.Principal, kbID, rootURL string, maxPages, maxDepth int) (*domain.CrawlJob, error) {
	if s.queue == nil {
		return nil, domain.ErrCrawlNotConfigured
	}
	if _, err := s.kbs.GetByID(ctx, p.WorkspaceID, kbID); err != nil {
		return nil, err
	}

	now := utcNow()
	job := &domain.CrawlJob{
		ID:              s.uuidGen.NewString(),
		KnowledgeBaseID: kbID,
		WorkspaceID:     p.WorkspaceID,
		RequestedBy:     p.UserID,
		RootURL:         strings.TrimSpace(rootURL),
		MaxPages:        maxPages,
		MaxDepth:        maxDepth,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	job.ApplyDefaults()
	if err := domain.ValidateCrawlJob(job); err != nil {
		return nil, err
	}
	if err := s.crawls.Create(ctx, job); err != nil {
		return nil, err
	}

	if _, err := s.queue.EnqueueCrawl(ctx, job.ID); err != nil {
		if ferr := s.crawls.Finish(ctx, job.ID, domain.CrawlStatusFailed, "could not be queued"); ferr != nil {
			s.log.WithError(ferr).WithField("crawl_id", job.ID).Warn("failed to mark crawl as failed")
		}
		return nil, fmt.Errorf("enqueue crawl: %w", err)
	}
	return job, nil
}

func (s *KnowledgeService) GetCrawl(ctx context.Context, p domain.Principal, kbID, crawlID string) (*domain.CrawlJob, error) {
	return s.crawls.GetByID(ctx, p.WorkspaceID, kbID, crawlID)
}

// RunCrawl executes a queued crawl. Each readable page becomes a url document
// queued for indexing; pages already in the knowledge base are skipped.
func (s *KnowledgeService) RunCrawl(ctx context.Context, crawlID string) error {
	if s.crawler == nil {
		return domain.ErrCrawlNotConfigured
	}
	job, err := s.crawls.Get(ctx, crawlID)
	if err != nil {
		return err
	}
	if job.Status != domain.CrawlStatusQueued && job.Status != domain.CrawlStatusRunning {
		return nil
	}
	if err := s.crawls.MarkRunning(ctx, job.ID); err != nil {
		return err
	}

	log := s.log.WithFields(logrus.Fields{"crawl_id": job.ID, "root_url": job.RootURL})
	pages := 0
	var stopReason string

	crawlErr := s.crawler.Crawl(ctx, job.RootURL, crawler.Options{MaxPages: job.MaxPages, MaxDepth: job.MaxDepth},
		func(ctx context.Context, page crawler.Page) error {
			if strings.TrimSpace(page.Text) == "" {
				return nil
			}
			doc := s.newDocument(job.WorkspaceID, job.KnowledgeBaseID, domain.SourceTypeURL, page.Title)
			if doc.Title == "" {
				doc.Title = page.URL
			}
			doc.SourceURL = page.URL
			doc.Content = page.Text
			doc.ContentType = "text/html"
			doc.SizeBytes = int64(len(page.Text))
			doc.Status = domain.DocumentStatusPending

			err := s.createForIndexing(ctx, doc)
			switch {
			case errors.Is(err, domain.ErrQuotaExceeded):
				stopReason = "document quota reached"
				return crawler.ErrStop
			case domain.CodeOf(err) == domain.ErrCodeAlreadyExists:
				return nil
			case err != nil:
				return err
			}
			pages++
			if err := s.crawls.IncrementPages(ctx, job.ID); err != nil {
				log.WithError(err).Warn("failed to update crawl progress")
			}
			return nil
		})

	status, msg := domain.CrawlStatusCompleted, stopReason
	if crawlErr != nil && !errors.Is(crawlErr, crawler.ErrStop) {
		status, msg = domain.CrawlStatusFailed, crawlErr.Error()
	}
	if err := s.crawls.Finish(ctx, job.ID, status, msg); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"pages": pages, "status": status}).Info("crawl finished")

	if s.notifier != nil && job.RequestedBy != "" {
		title := fmt.Sprintf("Crawl of %s finished with %d pages", job.RootURL, pages)
		if status == domain.CrawlStatusFailed {
			title = fmt.Sprintf("Crawl of %s failed", job.RootURL)
		}
		_, err := s.notifier.Send(ctx, NotifyInput{
			WorkspaceID: job.WorkspaceID,
			UserID:      job.RequestedBy,
			Type:        domain.NotificationCrawlCompleted,
			Title:       title,
			Body:        msg,
			Data: map[string]any{
				"crawl_id":          job.ID,
				"knowledge_base_id": job.KnowledgeBaseID,
				"pages":             pages,
				"status":            string(status),
			},
		})
		if err != nil {
			log.WithError(err).Warn("failed to send crawl notification")
		}
	}
	return nil
}

// Search embeds query and returns the closest chunks across the given knowledge bases.
func (s *KnowledgeService) Search(ctx context.Context, p domain.Principal, kbIDs []string, query string, limit int) ([]*domain.SearchHit, error) {
	kbIDs = dedupe(kbIDs)
	if len(kbIDs) == 0 {
		return nil, domain.ValidationError("at least one knowledge base is required")
	}
	owned, err := s.kbs.CountOwned(ctx, p.WorkspaceID, kbIDs)
	if err != nil {
		return nil, err
	}
	if owned != len(kbIDs) {
		return nil, domain.ErrKnowledgeBaseNotFound
	}
	return s.Retrieve(ctx, kbIDs, query, limit)
}

// Retrieve runs a similarity search without ownership checks. Callers must
// pass knowledge bases already scoped to one workspace.
func (s *KnowledgeService) Retrieve(ctx context.Context, kbIDs []string, query string, limit int) ([]*domain.SearchHit, error) {
	if s.embedder == nil {
		return nil, domain.ErrSearchNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ValidationError("query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchResults
	}
	if limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	if len(kbIDs) == 0 {
		return []*domain.SearchHit{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Retrieve", telemetry.SpanAttributes{Operation: "search"})
	defer span.End()

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.chunks.Search(ctx, kbIDs, embedding, limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []*domain.SearchHit{}
	}
	return hits, nil
}

func (s *KnowledgeService) newDocument(workspaceID, kbID string, source domain.SourceType, title string) *domain.KnowledgeDocument {
	now := utcNow()
	return &domain.KnowledgeDocument{
		ID:              s.uuidGen.NewString(),
		KnowledgeBaseID: kbID,
		WorkspaceID:     workspaceID,
		SourceType:      source,
		Title:           strings.TrimSpace(title),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// createForIndexing checks the document quota, then stores the document and its index job together.
func (s *KnowledgeService) createForIndexing(ctx context.Context, doc *domain.KnowledgeDocument) error {
	if err := domain.ValidateKnowledgeDocument(doc); err != nil {
		return err
	}
	if err := s.checkDocumentQuota(ctx, doc.WorkspaceID); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, s.newIndexJob(doc.ID, doc.CreatedAt))
	})
}

func (s *KnowledgeService) checkDocumentQuota(ctx context.Context, workspaceID string) error {
	count, err := s.docs.CountByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	return s.quota.CheckCountLimit(ctx, workspaceID, domain.MetricKnowledgeDocuments, count)
}

func (s *KnowledgeService) deleteObject(ctx context.Context, key string) {
	if s.store == nil {
		return
	}
	if err := s.store.DeleteObject(ctx, key); err != nil {
		s.log.WithError(err).WithField("storage_key", key).Warn("failed to delete stored object")
	}
}

func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
