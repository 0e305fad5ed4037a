// Package pipelines runs the background re-encryption worker that drains
// jobs created by the job service, one batch per tick.
package pipelines

import (
	"context"
	"log/slog"
	"time"

	"github.com/spounge-ai/auditvault/internal/domain"
	"github.com/spounge-ai/auditvault/internal/service"
)

const maxErrorLength = 4000

// ReencryptWorker claims at most one RUNNING job per tick and advances it by
// a single batch. Multiple replicas coexist safely because the claim is
// skip-locked and the batch scan is keyed on the source kid.
type ReencryptWorker struct {
	jobs      domain.JobRepository
	rotation  *service.RotationService
	pollDelay time.Duration
	logger    *slog.Logger

	// sleep is swappable so throttle behavior is testable without waiting.
	sleep func(d time.Duration)
}

// NewReencryptWorker creates a worker. pollDelay bounds how quickly a newly
// started job is picked up.
func NewReencryptWorker(jobs domain.JobRepository, rotation *service.RotationService, pollDelay time.Duration, logger *slog.Logger) *ReencryptWorker {
	if pollDelay <= 0 {
		pollDelay = time.Second
	}
	return &ReencryptWorker{
		jobs:      jobs,
		rotation:  rotation,
		pollDelay: pollDelay,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// SetSleep replaces the throttle sleep. Test hook.
func (w *ReencryptWorker) SetSleep(sleep func(d time.Duration)) {
	w.sleep = sleep
}

// Run ticks until the context is canceled. Errors are logged and absorbed;
// a failing job never stops the loop.
func (w *ReencryptWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollDelay)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "re-encryption worker started", "poll_delay", w.pollDelay.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "re-encryption worker stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.ErrorContext(ctx, "re-encryption tick failed", "error", err)
			}
		}
	}
}

// Tick processes one batch of one claimed job. Returns nil when no job is
// runnable. Exposed so tests and the one-shot CLI can drive the worker
// without the ticker.
func (w *ReencryptWorker) Tick(ctx context.Context) error {
	job, err := w.jobs.ClaimNextRunning(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	result, err := w.rotation.ReencryptBatchWithCheckpoint(ctx, job.FromKid, job.ToKid, job.BatchSize, job.Checkpoint())
	if err != nil {
		w.logger.ErrorContext(ctx, "re-encryption batch failed",
			"job_id", job.ID.String(),
			"from_kid", job.FromKid,
			"to_kid", job.ToKid,
			"error", err)
		return w.jobs.MarkFailed(ctx, job.ID, truncateError(err.Error()))
	}

	if result.Processed > 0 {
		if err := w.jobs.UpdateProgress(ctx, job.ID, result.Processed, result.Checkpoint); err != nil {
			return err
		}
	}

	if result.Done {
		if err := w.jobs.MarkDone(ctx, job.ID); err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "re-encryption job done",
			"job_id", job.ID.String(),
			"processed", job.Processed+result.Processed)
		return nil
	}

	// Throttle outside the batch transaction so row locks never outlive
	// the batch.
	if job.ThrottleMs > 0 && result.Processed > 0 {
		w.sleep(time.Duration(job.ThrottleMs) * time.Millisecond * time.Duration(result.Processed))
	}
	return nil
}

func truncateError(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	return msg[:maxErrorLength]
}
