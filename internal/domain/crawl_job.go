package domain

import "time"

// CrawlStatus represents the state of a crawl
type CrawlStatus string

const (
	CrawlStatusQueued    CrawlStatus = "queued"
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
)

const (
	DefaultCrawlMaxPages = 20
	MaxCrawlMaxPages     = 200
	DefaultCrawlMaxDepth = 2
	MaxCrawlMaxDepth     = 5
)

// CrawlJob fetches same-host pages from RootURL into a knowledge base.
type CrawlJob struct {
	ID              string
	KnowledgeBaseID string
	WorkspaceID     string
	RequestedBy     string
	RootURL         string
	MaxPages        int
	MaxDepth        int
	Status          CrawlStatus
	PagesIndexed    int
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// ApplyDefaults fills unset crawl limits.
func (c *CrawlJob) ApplyDefaults() {
	if c.MaxPages == 0 {
		c.MaxPages = DefaultCrawlMaxPages
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = DefaultCrawlMaxDepth
	}
	if c.Status == "" {
		c.Status = CrawlStatusQueued
	}
}

// ValidateCrawlJob validates a CrawlJob instance
func ValidateCrawlJob(c *CrawlJob) error {
	if c == nil {
		return ValidationError("crawl job cannot be nil")
	}
	if err := ValidateHTTPURL(c.RootURL); err != nil {
		return err
	}
	if c.MaxPages < 1 || c.MaxPages > MaxCrawlMaxPages {
		return ValidationError("max_pages must be between 1 and %d", MaxCrawlMaxPages)
	}
	if c.MaxDepth < 0 || c.MaxDepth > MaxCrawlMaxDepth {
		return ValidationError("max_depth must be between 0 and %d", MaxCrawlMaxDepth)
	}
	return nil
}
