package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a re-encryption job.
type JobStatus string

const (
	JobRunning  JobStatus = "RUNNING"
	JobDone     JobStatus = "DONE"
	JobFailed   JobStatus = "FAILED"
	JobCanceled JobStatus = "CANCELED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCanceled
}

// ReencryptJob is one resumable unit of rotation work. The checkpoint
// (LastCreatedAt, LastID) strictly advances and is persisted transactionally
// with each batch, so a crashed job resumes exactly where it left off.
type ReencryptJob struct {
	ID            uuid.UUID
	FromKid       string
	ToKid         string
	Status        JobStatus
	BatchSize     int
	ThrottleMs    int
	LastCreatedAt *time.Time
	LastID        *uuid.UUID
	Processed     int64
	RequestedBy   string
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// Checkpoint returns the job's persisted checkpoint, or nil if the job has
// not processed anything yet.
func (j *ReencryptJob) Checkpoint() *Checkpoint {
	if j.LastCreatedAt == nil || j.LastID == nil {
		return nil
	}
	return &Checkpoint{CreatedAt: *j.LastCreatedAt, ID: *j.LastID}
}

// JobRepository persists re-encryption jobs. ClaimNextRunning must use a
// skip-locked claim so replicated workers never pick the same job at once.
type JobRepository interface {
	Create(ctx context.Context, job *ReencryptJob) error
	Get(ctx context.Context, id uuid.UUID) (*ReencryptJob, error)
	// Cancel transitions RUNNING to CANCELED. It reports false when the job
	// is already terminal (no-op) and ErrJobNotFound when absent.
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimNextRunning(ctx context.Context) (*ReencryptJob, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, processedDelta int64, cp *Checkpoint) error
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}
