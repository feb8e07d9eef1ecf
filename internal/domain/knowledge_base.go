package domain

import (
	"net/url"
	"strings"
	"time"
)

// KnowledgeBase is a document collection used for retrieval.
type KnowledgeBase struct {
	ID            string
	WorkspaceID   string
	Name          string
	Description   string
	DocumentCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceType identifies where a document's content came from
type SourceType string

const (
	SourceTypeText SourceType = "text"
	SourceTypeURL  SourceType = "url"
	SourceTypeFile SourceType = "file"
)

// DocumentStatus tracks a document through upload and indexing
type DocumentStatus string

const (
	DocumentStatusUploading DocumentStatus = "uploading"
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusIndexing  DocumentStatus = "indexing"
	DocumentStatusReady     DocumentStatus = "ready"
	DocumentStatusFailed    DocumentStatus = "failed"
)

// MaxDocumentBytes caps uploaded files and inline text.
const MaxDocumentBytes = 10 << 20

// KnowledgeDocument is a single source inside a knowledge base.
type KnowledgeDocument struct {
	ID              string
	KnowledgeBaseID string
	WorkspaceID     string
	SourceType      SourceType
	Title           string
	SourceURL       string
	Content         string
	StorageKey      string
	ContentType     string
	SizeBytes       int64
	Status          DocumentStatus
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DocumentChunk is an embedded slice of a document.
type DocumentChunk struct {
	ID              string
	DocumentID      string
	KnowledgeBaseID string
	ChunkIndex      int
	Content         string
	Embedding       []float32
}

// SearchHit is a chunk returned by similarity search.
type SearchHit struct {
	DocumentID      string  `json:"document_id"`
	KnowledgeBaseID string  `json:"knowledge_base_id"`
	Title           string  `json:"title"`
	ChunkIndex      int     `json:"chunk_index"`
	Content         string  `json:"content"`
	Score           float64 `json:"score"`
}

var allowedContentTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"text/html":        true,
	"text/csv":         true,
	"application/json": true,
}

// IsAllowedContentType reports whether uploads of this MIME type can be indexed.
func IsAllowedContentType(ct string) bool {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return allowedContentTypes[strings.TrimSpace(strings.ToLower(ct))]
}

// ValidateKnowledgeBase validates a KnowledgeBase instance
func ValidateKnowledgeBase(kb *KnowledgeBase) error {
	if kb == nil {
		return ValidationError("knowledge base cannot be nil")
	}
	if kb.ID == "" {
		return ValidationError("knowledge base ID is required")
	}
	if kb.WorkspaceID == "" {
		return ValidationError("knowledge base WorkspaceID is required")
	}
	if strings.TrimSpace(kb.Name) == "" {
		return ValidationError("knowledge base name is required")
	}
	if len(kb.Name) > 120 {
		return ValidationError("knowledge base name must be at most 120 characters")
	}
	return nil
}

// ValidateKnowledgeDocument validates a KnowledgeDocument instance
func ValidateKnowledgeDocument(d *KnowledgeDocument) error {
	if d == nil {
		return ValidationError("document cannot be nil")
	}
	if d.ID == "" || d.KnowledgeBaseID == "" || d.WorkspaceID == "" {
		return ValidationError("document ID, KnowledgeBaseID and WorkspaceID are required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return ValidationError("document title is required")
	}
	switch d.SourceType {
	case SourceTypeText:
		if strings.TrimSpace(d.Content) == "" {
			return ValidationError("document content is required")
		}
		if len(d.Content) > MaxDocumentBytes {
			return ValidationError("document content exceeds %d bytes", MaxDocumentBytes)
		}
	case SourceTypeURL:
		if err := ValidateHTTPURL(d.SourceURL); err != nil {
			return err
		}
	case SourceTypeFile:
		if !IsAllowedContentType(d.ContentType) {
			return ErrUnsupportedContentType
		}
		if d.SizeBytes <= 0 || d.SizeBytes > MaxDocumentBytes {
			return ValidationError("file size must be between 1 and %d bytes", MaxDocumentBytes)
		}
	default:
		return ValidationError("document source type is invalid: %s", d.SourceType)
	}
	return nil
}

// ValidateHTTPURL requires an absolute http(s) URL with a host.
func ValidateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ValidationError("url must be an absolute http(s) URL")
	}
	return nil
}
