// -----------------------------------------------------------------------
// Generation Job - checkpointed pipeline run state
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/ternarybob/trado/internal/common"
)

// JobStatus represents the lifecycle state of a generation job
type JobStatus string

// JobStatus constants. The state machine is strictly linear:
// pending -> processing -> {completed | failed}.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// GenerationJob tracks one generation attempt for a document. The job is
// exclusively mutated by the orchestrator; everything else, including the
// client, reads snapshots.
type GenerationJob struct {
	ID           string     `json:"id" badgerhold:"key"`
	DocumentID   string     `json:"document_id" badgerhold:"index"`
	TenantID     string     `json:"tenant_id"`
	Status       JobStatus  `json:"status" badgerhold:"index"`
	Progress     int        `json:"progress"`     // 0-100, non-decreasing while not terminal
	CurrentStep  string     `json:"current_step"` // human-readable checkpoint label
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewGenerationJob creates a pending job for a document
func NewGenerationJob(documentID, tenantID string) *GenerationJob {
	now := time.Now()
	return &GenerationJob{
		ID:         common.NewJobID(),
		DocumentID: documentID,
		TenantID:   tenantID,
		Status:     JobStatusPending,
		Progress:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkStarted transitions the job to processing and stamps started_at
func (j *GenerationJob) MarkStarted() {
	j.Status = JobStatusProcessing
	j.Progress = 0
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Checkpoint records (progress, current_step) before a step does its work,
// so a crash mid-step leaves an accurate "was about to do X" record.
// Progress never moves backwards.
func (j *GenerationJob) Checkpoint(progress int, step string) {
	if progress > j.Progress {
		j.Progress = progress
	}
	j.CurrentStep = step
	j.UpdatedAt = time.Now()
}

// MarkCompleted transitions the job to its terminal completed state
func (j *GenerationJob) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.Progress = 100
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed transitions the job to its terminal failed state, recording the
// causing error's message verbatim
func (j *GenerationJob) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errorMsg
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// IsTerminal returns true once no further transition can occur
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobStatusUpdate is the snapshot shape served by the polling endpoint and
// carried by push channel events. Both delivery paths use the same shape so
// the client can switch between them freely.
type JobStatusUpdate struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	CurrentStep  string     `json:"current_step"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns the client-visible view of the job
func (j *GenerationJob) Snapshot() *JobStatusUpdate {
	return &JobStatusUpdate{
		ID:           j.ID,
		DocumentID:   j.DocumentID,
		Status:       j.Status,
		Progress:     j.Progress,
		CurrentStep:  j.CurrentStep,
		ErrorMessage: j.ErrorMessage,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// IsTerminal reports whether the snapshot represents a terminal job state
func (s *JobStatusUpdate) IsTerminal() bool {
	return s.Status == JobStatusCompleted || s.Status == JobStatusFailed
}
