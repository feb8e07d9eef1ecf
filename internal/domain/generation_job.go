package domain

import "time"

// GenerationStatus is the lifecycle state of a generation job
type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
	GenerationStatusCancelled GenerationStatus = "cancelled"
)

// GenerationJob is a queued template-driven content generation request.
type GenerationJob struct {
	ID          string
	WorkspaceID string
	UserID      string
	TemplateID  string
	Inputs      map[string]string
	Prompt      string
	Model       string
	Status      GenerationStatus
	Output      string
	Error       string
	Attempts    int
	TaskID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// IsTerminal reports whether the job can no longer change.
func (j *GenerationJob) IsTerminal() bool {
	switch j.Status {
	case GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCancelled:
		return true
	}
	return false
}

// IsCancellable reports whether the job has not started running yet.
func (j *GenerationJob) IsCancellable() bool {
	return j.Status == GenerationStatusPending || j.Status == GenerationStatusQueued
}

// IsRunnable reports whether a worker may pick the job up. Running is included
// so that a retry after a crashed attempt proceeds.
func (j *GenerationJob) IsRunnable() bool {
	switch j.Status {
	case GenerationStatusPending, GenerationStatusQueued, GenerationStatusRunning:
		return true
	}
	return false
}

// IsValidGenerationStatus checks a status filter value
func IsValidGenerationStatus(s GenerationStatus) bool {
	switch s {
	case GenerationStatusPending, GenerationStatusQueued, GenerationStatusRunning,
		GenerationStatusCompleted, GenerationStatusFailed, GenerationStatusCancelled:
		return true
	}
	return false
}
