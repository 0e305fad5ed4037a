package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/spounge-ai/auditvault/internal/crypto"
	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

const (
	minThrottleMs = 0
	maxThrottleMs = 10000
)

// JobService manages resumable background re-encryption jobs. The service
// only records intent; the worker in internal/pipelines does the work.
type JobService struct {
	jobs   domain.JobRepository
	ring   *crypto.Keyring
	logger *slog.Logger
}

// NewJobService creates the job service.
func NewJobService(jobs domain.JobRepository, ring *crypto.Keyring, logger *slog.Logger) *JobService {
	return &JobService{jobs: jobs, ring: ring, logger: logger}
}

// Start validates and registers a re-encryption job in RUNNING state.
// Batch size and throttle are clamped to safe operational bounds.
func (s *JobService) Start(ctx context.Context, fromKid, toKid string, batchSize, throttleMs int, requestedBy string) (*domain.ReencryptJob, error) {
	if !s.ring.Has(fromKid) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKid, fromKid)
	}
	if !s.ring.Has(toKid) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKid, toKid)
	}

	if batchSize < minBatchLimit {
		batchSize = minBatchLimit
	}
	if batchSize > maxBatchLimit {
		batchSize = maxBatchLimit
	}
	if throttleMs < minThrottleMs {
		throttleMs = minThrottleMs
	}
	if throttleMs > maxThrottleMs {
		throttleMs = maxThrottleMs
	}

	job := &domain.ReencryptJob{
		ID:          uuid.New(),
		FromKid:     fromKid,
		ToKid:       toKid,
		Status:      domain.JobRunning,
		BatchSize:   batchSize,
		ThrottleMs:  throttleMs,
		RequestedBy: requestedBy,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create re-encryption job: %w", err)
	}

	s.logger.InfoContext(ctx, "re-encryption job started",
		"job_id", job.ID.String(),
		"from_kid", fromKid,
		"to_kid", toKid,
		"batch_size", batchSize,
		"throttle_ms", throttleMs,
		"requested_by", requestedBy)
	return s.jobs.Get(ctx, job.ID)
}

// Get returns the current state of a job.
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*domain.ReencryptJob, error) {
	return s.jobs.Get(ctx, id)
}

// Cancel requests cancellation. The worker observes it between batches, so
// an in-flight batch always completes. Returns ErrJobTerminal when the job
// already finished.
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID) error {
	canceled, err := s.jobs.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !canceled {
		return fmt.Errorf("%w: %s", apperrors.ErrJobTerminal, id.String())
	}
	s.logger.InfoContext(ctx, "re-encryption job canceled", "job_id", id.String())
	return nil
}
