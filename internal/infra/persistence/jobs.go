package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	consts "github.com/spounge-ai/auditvault/internal/constants"
	"github.com/spounge-ai/auditvault/internal/domain"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

// JobRepository persists re-encryption jobs. Claiming uses a skip-locked
// select so replicated worker instances never pick the same job at once.
type JobRepository struct {
	*PostgresBase
	txManager *TransactionManager[*domain.ReencryptJob]
}

// NewJobRepository creates the job adapter.
func NewJobRepository(db *pgxpool.Pool, logger *slog.Logger) *JobRepository {
	return &JobRepository{
		PostgresBase: NewPostgresBase(db, logger),
		txManager:    NewTransactionManager[*domain.ReencryptJob](logger),
	}
}

// Create inserts a new RUNNING job.
func (r *JobRepository) Create(ctx context.Context, job *domain.ReencryptJob) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err := r.DB.Exec(ctx, consts.Queries[consts.StmtJobInsert],
		job.ID.String(), job.FromKid, job.ToKid, job.BatchSize, job.ThrottleMs, job.RequestedBy)
	if err != nil {
		return fmt.Errorf("failed to create reencrypt job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the job or ErrJobNotFound.
func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ReencryptJob, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	job, err := ScanJob(r.DB.QueryRow(ctx, consts.Queries[consts.StmtJobGet], id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get reencrypt job %s: %w", id, err)
	}
	return job, nil
}

// Cancel transitions NEW or RUNNING jobs to CANCELED. Terminal jobs are a
// no-op, reported as false.
func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	tag, err := r.DB.Exec(ctx, consts.Queries[consts.StmtJobCancel], id.String())
	if err != nil {
		return false, fmt.Errorf("failed to cancel reencrypt job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ClaimNextRunning picks the oldest RUNNING job not currently claimed by
// another worker, or nil when there is no eligible work.
func (r *JobRepository) ClaimNextRunning(ctx context.Context) (*domain.ReencryptJob, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	return r.txManager.ExecuteInTransaction(ctx, r.DB, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.ReencryptJob, error) {
		job, err := ScanJob(tx.QueryRow(ctx, consts.Queries[consts.StmtJobClaim]))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to claim reencrypt job: %w", err)
		}
		return job, nil
	})
}

// UpdateProgress advances the job's processed counter and checkpoint.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, processedDelta int64, cp *domain.Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var lastCreatedAt any
	var lastID any
	if cp != nil {
		lastCreatedAt = cp.CreatedAt
		lastID = cp.ID.String()
	}

	_, err := r.DB.Exec(ctx, consts.Queries[consts.StmtJobProgress], processedDelta, lastCreatedAt, lastID, id.String())
	if err != nil {
		return fmt.Errorf("failed to update progress for job %s: %w", id, err)
	}
	return nil
}

// MarkDone finishes the job successfully.
func (r *JobRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := r.DB.Exec(ctx, consts.Queries[consts.StmtJobMarkDone], id.String()); err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", id, err)
	}
	return nil
}

// MarkFailed finishes the job with a diagnostic. No automatic retry; an
// operator restarts rotation from the persisted checkpoint.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := r.DB.Exec(ctx, consts.Queries[consts.StmtJobMarkFailed], id.String(), lastError); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}
