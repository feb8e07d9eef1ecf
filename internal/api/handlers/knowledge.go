package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/api"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/pagination"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/go-chi/chi/v5"
)

type KnowledgeService interface {
	CreateKnowledgeBase(ctx context.Context, p domain.Principal, name, description string) (*domain.KnowledgeBase, error)
	GetKnowledgeBase(ctx context.Context, p domain.Principal, id string) (*domain.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context, p domain.Principal, in service.ListInput) (*pagination.Page[*domain.KnowledgeBase], error)
	UpdateKnowledgeBase(ctx context.Context, p domain.Principal, id, name, description string) (*domain.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, p domain.Principal, id string) error
	GetDocument(ctx context.Context, p domain.Principal, kbID, docID string) (*domain.KnowledgeDocument, error)
	ListDocuments(ctx context.Context, p domain.Principal, kbID string, in service.ListInput) (*pagination.Page[*domain.KnowledgeDocument], error)
	AddTextDocument(ctx context.Context, p domain.Principal, kbID, title, content string) (*domain.KnowledgeDocument, error)
	InitFileUpload(ctx context.Context, p domain.Principal, kbID, filename, contentType string, size int64) (*service.FileUpload, error)
	CompleteFileUpload(ctx context.Context, p domain.Principal, kbID, docID string) (*domain.KnowledgeDocument, error)
	DeleteDocument(ctx context.Context, p domain.Principal, kbID, docID string) error
	StartCrawl(ctx context.Context, p domain.Principal, kbID, rootURL string, maxPages, maxDepth int) (*domain.CrawlJob, error)
	GetCrawl(ctx context.Context, p domain.Principal, kbID, crawlID string) (*domain.CrawlJob, error)
	Search(ctx context.Context, p domain.Principal, kbIDs []string, query string, limit int) ([]*domain.SearchHit, error)
}

type KnowledgeHandler struct {
	svc KnowledgeService
}

func NewKnowledgeHandler(svc KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type KnowledgeBaseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type TextDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type InitUploadResponse struct {
	Document  *DocumentResponse `json:"document"`
	UploadURL string            `json:"upload_url"`
}

type CrawlRequest struct {
	RootURL  string `json:"root_url"`
	MaxPages int    `json:"max_pages"`
	MaxDepth int    `json:"max_depth"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type KnowledgeBaseResponse struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspace_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DocumentCount int    `json:"document_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type DocumentResponse struct {
	ID              string `json:"id"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
	SourceType      string `json:"source_type"`
	Title           string `json:"title"`
	SourceURL       string `json:"source_url,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
	SizeBytes       int64  `json:"size_bytes"`
	Status          string `json:"status"`
	Error           string `json:"error,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type CrawlResponse struct {
	ID              string  `json:"id"`
	KnowledgeBaseID string  `json:"knowledge_base_id"`
	RootURL         string  `json:"root_url"`
	MaxPages        int     `json:"max_pages"`
	MaxDepth        int     `json:"max_depth"`
	Status          string  `json:"status"`
	PagesIndexed    int     `json:"pages_indexed"`
	Error           string  `json:"error,omitempty"`
	CreatedAt       string  `json:"created_at"`
	CompletedAt     *string `json:"completed_at"`
}

func knowledgeBaseToResponse(kb *domain.KnowledgeBase) *KnowledgeBaseResponse {
	return &KnowledgeBaseResponse{
		ID:            kb.ID,
		WorkspaceID:   kb.WorkspaceID,
		Name:          kb.Name,
		Description:   kb.Description,
		DocumentCount: kb.DocumentCount,
		CreatedAt:     formatTime(kb.CreatedAt),
		UpdatedAt:     formatTime(kb.UpdatedAt),
	}
}

func documentToResponse(d *domain.KnowledgeDocument) *DocumentResponse {
	return &DocumentResponse{
		ID:              d.ID,
		KnowledgeBaseID: d.KnowledgeBaseID,
		SourceType:      string(d.SourceType),
		Title:           d.Title,
		SourceURL:       d.SourceURL,
		ContentType:     d.ContentType,
		SizeBytes:       d.SizeBytes,
		Status:          string(d.Status),
		Error:           d.Error,
		CreatedAt:       formatTime(d.CreatedAt),
		UpdatedAt:       formatTime(d.UpdatedAt),
	}
}

func crawlToResponse(c *domain.CrawlJob) *CrawlResponse {
	return &CrawlResponse{
		ID:              c.ID,
		KnowledgeBaseID: c.KnowledgeBaseID,
		RootURL:         c.RootURL,
		MaxPages:        c.MaxPages,
		MaxDepth:        c.MaxDepth,
		Status:          string(c.Status),
		PagesIndexed:    c.PagesIndexed,
		Error:           c.Error,
		CreatedAt:       formatTime(c.CreatedAt),
		CompletedAt:     formatTimePtr(c.CompletedAt),
	}
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req KnowledgeBaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	kb, err := h.svc.CreateKnowledgeBase(r.Context(), p, req.Name, req.Description)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, knowledgeBaseToResponse(kb))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	kb, err := h.svc.GetKnowledgeBase(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, knowledgeBaseToResponse(kb))
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	in, ok := listInput(w, r)
	if !ok {
		return
	}

	page, err := h.svc.ListKnowledgeBases(r.Context(), p, in)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, pageResponse(page, knowledgeBaseToResponse))
}

func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req KnowledgeBaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	kb, err := h.svc.UpdateKnowledgeBase(r.Context(), p, chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, knowledgeBaseToResponse(kb))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteKnowledgeBase(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	in, ok := listInput(w, r)
	if !ok {
		return
	}

	page, err := h.svc.ListDocuments(r.Context(), p, chi.URLParam(r, "id"), in)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, pageResponse(page, documentToResponse))
}

func (h *KnowledgeHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "docID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *KnowledgeHandler) AddText(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req TextDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	doc, err := h.svc.AddTextDocument(r.Context(), p, chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *KnowledgeHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req InitUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	upload, err := h.svc.InitFileUpload(r.Context(), p, chi.URLParam(r, "id"), req.Filename, req.ContentType, req.SizeBytes)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, &InitUploadResponse{
		Document:  documentToResponse(upload.Document),
		UploadURL: upload.UploadURL,
	})
}

func (h *KnowledgeHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.CompleteFileUpload(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "docID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *KnowledgeHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "docID")); err != nil {
		api.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) StartCrawl(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req CrawlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RootURL == "" {
		api.Error(w, http.StatusBadRequest, "root_url is required")
		return
	}

	job, err := h.svc.StartCrawl(r.Context(), p, chi.URLParam(r, "id"), req.RootURL, req.MaxPages, req.MaxDepth)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusAccepted, crawlToResponse(job))
}

func (h *KnowledgeHandler) GetCrawl(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	job, err := h.svc.GetCrawl(r.Context(), p, chi.URLParam(r, "id"), chi.URLParam(r, "crawlID"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, crawlToResponse(job))
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := h.svc.Search(r.Context(), p, []string{chi.URLParam(r, "id")}, req.Query, req.Limit)
	if err != nil {
		api.HandleError(w, r, err)
		return
	}
	if hits == nil {
		hits = []*domain.SearchHit{}
	}
	api.Success(w, http.StatusOK, hits)
}
