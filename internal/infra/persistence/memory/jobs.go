package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

// JobRepository is the in-memory re-encryption job table.
type JobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ReencryptJob
}

// NewJobRepository creates an empty job table.
func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[uuid.UUID]*domain.ReencryptJob)}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.ReencryptJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	cp := *job
	cp.Status = domain.JobRunning
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.StartedAt = &now
	r.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ReencryptJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false, apperrors.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = domain.JobCanceled
	job.UpdatedAt = now
	job.FinishedAt = &now
	return true, nil
}

func (r *JobRepository) ClaimNextRunning(ctx context.Context) (*domain.ReencryptJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *domain.ReencryptJob
	for _, job := range r.jobs {
		if job.Status != domain.JobRunning {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, processedDelta int64, cp *domain.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrJobNotFound
	}
	job.Processed += processedDelta
	if cp != nil {
		created := cp.CreatedAt
		id := cp.ID
		job.LastCreatedAt = &created
		job.LastID = &id
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *JobRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.finish(id, domain.JobDone, "")
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.finish(id, domain.JobFailed, lastError)
}

func (r *JobRepository) finish(id uuid.UUID, status domain.JobStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrJobNotFound
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	job.FinishedAt = &now
	if lastError != "" {
		job.LastError = lastError
	}
	return nil
}
