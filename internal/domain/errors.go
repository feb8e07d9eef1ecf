package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches two domain errors by code and message so that wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError is shorthand for a VALIDATION_ERROR with a formatted message.
func ValidationError(format string, args ...any) *DomainError {
	return NewDomainError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first DomainError in the chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

// Not found errors
var (
	ErrWorkspaceNotFound     = NewDomainError(ErrCodeNotFound, "workspace not found")
	ErrMemberNotFound        = NewDomainError(ErrCodeNotFound, "workspace member not found")
	ErrAPIKeyNotFound        = NewDomainError(ErrCodeNotFound, "api key not found")
	ErrBotNotFound           = NewDomainError(ErrCodeNotFound, "bot not found")
	ErrWidgetVersionNotFound = NewDomainError(ErrCodeNotFound, "widget version not found")
	ErrKnowledgeBaseNotFound = NewDomainError(ErrCodeNotFound, "knowledge base not found")
	ErrDocumentNotFound      = NewDomainError(ErrCodeNotFound, "document not found")
	ErrCrawlJobNotFound      = NewDomainError(ErrCodeNotFound, "crawl job not found")
	ErrIndexJobNotFound      = NewDomainError(ErrCodeNotFound, "index job not found")
	ErrToolNotFound          = NewDomainError(ErrCodeNotFound, "creation tool not found")
	ErrTemplateNotFound      = NewDomainError(ErrCodeNotFound, "template not found")
	ErrGenerationJobNotFound = NewDomainError(ErrCodeNotFound, "generation job not found")
	ErrNotificationNotFound  = NewDomainError(ErrCodeNotFound, "notification not found")
	ErrPlanNotFound          = NewDomainError(ErrCodeNotFound, "plan not found")
	ErrSubscriptionNotFound  = NewDomainError(ErrCodeNotFound, "subscription not found")
)

// Already exists errors
var (
	ErrWorkspaceAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "workspace already exists")
	ErrMemberAlreadyExists    = NewDomainError(ErrCodeAlreadyExists, "user is already a member of this workspace")
	ErrAPIKeyAlreadyExists    = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked   = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey   = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrInvalidSession  = NewDomainError(ErrCodeUnauthorized, "invalid widget session")
	ErrForbidden       = NewDomainError(ErrCodeForbidden, "insufficient workspace role")
	ErrOriginForbidden = NewDomainError(ErrCodeForbidden, "origin is not allowed for this widget")
)

// Operation errors
var (
	ErrLastOwner                = NewDomainError(ErrCodeInvalidOperation, "workspace must keep at least one owner")
	ErrWidgetNotDraft           = NewDomainError(ErrCodeInvalidOperation, "only draft widget versions can be changed")
	ErrWidgetArchived           = NewDomainError(ErrCodeInvalidOperation, "widget version is archived")
	ErrWidgetPublishConflict    = NewDomainError(ErrCodeInvalidOperation, "another widget version was published at the same time")
	ErrWidgetVersionConflict    = NewDomainError(ErrCodeAlreadyExists, "widget version number already taken, retry")
	ErrNoPublishedWidget        = NewDomainError(ErrCodeNotFound, "bot has no published widget")
	ErrBotDisabled              = NewDomainError(ErrCodeInvalidOperation, "bot is disabled")
	ErrTemplateReadOnly         = NewDomainError(ErrCodeForbidden, "catalog templates cannot be modified")
	ErrTemplateArchived         = NewDomainError(ErrCodeInvalidOperation, "template is archived")
	ErrGenerationNotCancellable = NewDomainError(ErrCodeInvalidOperation, "generation job can no longer be cancelled")
	ErrUploadNotPending         = NewDomainError(ErrCodeInvalidOperation, "document is not awaiting upload")
	ErrUnsupportedContentType   = NewDomainError(ErrCodeValidation, "unsupported document content type")
	ErrDocumentEncoding         = NewDomainError(ErrCodeValidation, "text documents must be UTF-8 encoded")
	ErrSubscriptionCancelled    = NewDomainError(ErrCodeInvalidOperation, "subscription is cancelled")
	ErrKnowledgeBaseForeign     = NewDomainError(ErrCodeValidation, "knowledge base does not belong to this workspace")
)

// Quota errors
var (
	ErrQuotaExceeded = NewDomainError(ErrCodeQuotaExceeded, "plan quota exceeded")
	ErrRateLimited   = NewDomainError(ErrCodeRateLimited, "too many messages, slow down")
)

// Storage errors
var (
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
	ErrStorageNotConfigured = NewDomainError(ErrCodeInvalidOperation, "file uploads are not configured")
	ErrCrawlNotConfigured   = NewDomainError(ErrCodeInvalidOperation, "crawling is not configured")
	ErrSearchNotConfigured  = NewDomainError(ErrCodeInvalidOperation, "semantic search is not configured")
	ErrModelNotConfigured   = NewDomainError(ErrCodeInvalidOperation, "language model is not configured")
)
